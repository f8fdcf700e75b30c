package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinusMinutes_SameHour(t *testing.T) {
	got, ok := MinusMinutes("08:30", 10)
	require.True(t, ok)
	assert.Equal(t, "08:20", got)
}

func TestMinusMinutes_BorrowsAcrossHour(t *testing.T) {
	got, ok := MinusMinutes("08:05", 10)
	require.True(t, ok)
	assert.Equal(t, "07:55", got)

	got, ok = MinusMinutes("13:00", 60)
	require.True(t, ok)
	assert.Equal(t, "12:00", got)
}

func TestMinusMinutes_CrossesMidnight(t *testing.T) {
	_, ok := MinusMinutes("00:05", 10)
	assert.False(t, ok)

	_, ok = MinusMinutes("00:00", 1)
	assert.False(t, ok)

	// Exactly midnight stays on the same day.
	got, ok := MinusMinutes("00:10", 10)
	require.True(t, ok)
	assert.Equal(t, "00:00", got)
}

func TestMinusMinutes_RejectsMalformedInput(t *testing.T) {
	_, ok := MinusMinutes("8:30", 5)
	assert.False(t, ok)
}

func TestValidHHMM(t *testing.T) {
	assert.True(t, ValidHHMM("00:00"))
	assert.True(t, ValidHHMM("23:59"))
	assert.False(t, ValidHHMM("24:00"))
	assert.False(t, ValidHHMM("5:30"))
	assert.False(t, ValidHHMM("05:60"))
	assert.False(t, ValidHHMM("0530"))
}

func TestDayValidate(t *testing.T) {
	valid := Day{
		Date:      "2024-01-01",
		Occasions: map[Key]string{KeyFajr: "05:30", KeyIsha: "19:45"},
	}
	assert.NoError(t, valid.Validate())

	badDate := Day{Date: "01.01.2024", Occasions: map[Key]string{KeyFajr: "05:30"}}
	assert.Error(t, badDate.Validate())

	badTime := Day{Date: "2024-01-01", Occasions: map[Key]string{KeyFajr: "5:30"}}
	assert.Error(t, badTime.Validate())

	badKey := Day{Date: "2024-01-01", Occasions: map[Key]string{Key("midnight"): "00:00"}}
	assert.Error(t, badKey.Validate())
}

func TestOrderIsTheFiveFixedOccasions(t *testing.T) {
	require.Len(t, Order, 5)
	assert.Equal(t, []Key{KeyFajr, KeyDhuhr, KeyAsr, KeyMaghrib, KeyIsha}, Order)
}
