package quarter

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finresearch/pkg/errors"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in      string
		want    Quarter
		wantErr bool
	}{
		{in: "2024q1", want: Quarter{Year: 2024, Q: 1}},
		{in: "2023Q4", want: Quarter{Year: 2023, Q: 4}},
		{in: " 2025q2 ", want: Quarter{Year: 2025, Q: 2}},
		{in: "2024q5", wantErr: true},
		{in: "2024q0", wantErr: true},
		{in: "24q1", wantErr: true},
		{in: "2024-1", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.True(t, errors.Is(err, errors.ErrInvalidInput))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestQuarter_OrderingAndNext(t *testing.T) {
	q4 := MustParse("2023q4")
	q1 := MustParse("2024q1")

	assert.True(t, q4.Before(q1))
	assert.False(t, q1.Before(q4))
	assert.Equal(t, q1, q4.Next())
	assert.Equal(t, "2024q1", q1.String())
	assert.Equal(t, q1.Ordinal()-1, q4.Ordinal())
}

func TestQuarter_Aliases(t *testing.T) {
	aliases := MustParse("2024q3").Aliases()

	assert.Contains(t, aliases, "2024q3")
	assert.Contains(t, aliases, "Q3 2024")
	assert.Contains(t, aliases, "Q3 FY2024")
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("2023q3", "2024q2")
	require.NoError(t, err)

	assert.Equal(t, 4, r.Len())
	assert.Equal(t, []Quarter{
		{Year: 2023, Q: 3}, {Year: 2023, Q: 4}, {Year: 2024, Q: 1}, {Year: 2024, Q: 2},
	}, r.Quarters())
	assert.True(t, r.Contains(MustParse("2024q1")))
	assert.False(t, r.Contains(MustParse("2024q3")))
	assert.Equal(t, "2023q3..2024q2", r.String())
}

func TestParseRange_SingleQuarter(t *testing.T) {
	r, err := ParseRange("2024q2", "2024q2")
	require.NoError(t, err)

	assert.Equal(t, []Quarter{{Year: 2024, Q: 2}}, r.Quarters())
	assert.Equal(t, Single(MustParse("2024q2")), r)
	assert.Equal(t, "2024q2", r.String())
}

func TestParseRange_Inverted(t *testing.T) {
	_, err := ParseRange("2024q4", "2024q1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}

func TestRange_Validate(t *testing.T) {
	assert.NoError(t, Range{Start: MustParse("2024q1"), End: MustParse("2024q4")}.Validate())
	assert.Error(t, Range{Start: MustParse("2024q4"), End: MustParse("2024q1")}.Validate())
	assert.Error(t, Range{Start: Quarter{Year: 2024, Q: 7}, End: MustParse("2024q4")}.Validate())
	assert.Error(t, Range{}.Validate())
}

func TestRange_JSON(t *testing.T) {
	in := Range{Start: MustParse("2024q1"), End: MustParse("2024q4")}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.JSONEq(t, `{"start_quarter":"2024q1","end_quarter":"2024q4"}`, string(data))

	var out Range
	require.NoError(t, json.Unmarshal(data, &out))
	assert.Equal(t, in, out)

	assert.Error(t, json.Unmarshal([]byte(`{"start_quarter":"2024q9","end_quarter":"2024q4"}`), &out))
}
