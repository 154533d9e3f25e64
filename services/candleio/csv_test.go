package candleio

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"backsim/services/engine"
)

func TestParseCSV(t *testing.T) {
	in := strings.Join([]string{
		"timestamp,open,high,low,close,volume",
		"1700003600000,103.5,110,102,108,7.25",
		"1700000000000,100,104.25,99.5,103.5,12.5",
	}, "\n")

	candles, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, candles, 2)

	// sorted by timestamp regardless of file order
	assert.Equal(t, int64(1_700_000_000_000), candles[0].Timestamp)
	assert.Equal(t, 104.25, candles[0].High)
	assert.Equal(t, int64(1_700_003_600_000), candles[1].Timestamp)
	assert.Equal(t, 7.25, candles[1].Volume)
}

func TestParseCSVDeduplicatesKeepingLast(t *testing.T) {
	in := strings.Join([]string{
		"1700000000000,100,101,99,100,1",
		"1700000000000,100,102,99,101,2",
	}, "\n")

	candles, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 101.0, candles[0].Close)
}

func TestParseCSVRejectsBadRows(t *testing.T) {
	var derr *engine.DataError

	_, err := ParseCSV(strings.NewReader("1700000000000,100,not_a_price,99,100,1"))
	require.ErrorAs(t, err, &derr)

	_, err = ParseCSV(strings.NewReader("1700000000000,100,101\n"))
	require.ErrorAs(t, err, &derr)

	// non-numeric timestamp past the header line is a defect, not a header
	_, err = ParseCSV(strings.NewReader("1700000000000,100,101,99,100,1\noops,100,101,99,100,1"))
	require.ErrorAs(t, err, &derr)
}

func TestParseCSVMissingVolumeDefaultsToZero(t *testing.T) {
	candles, err := ParseCSV(strings.NewReader("1700000000000,100,101,99,100"))
	require.NoError(t, err)
	require.Len(t, candles, 1)
	assert.Equal(t, 0.0, candles[0].Volume)
}
