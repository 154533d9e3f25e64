package candleio

import (
	"fmt"
	"io"

	"github.com/apache/arrow/go/v14/arrow"
	"github.com/apache/arrow/go/v14/arrow/array"
	"github.com/apache/arrow/go/v14/arrow/ipc"
	"github.com/apache/arrow/go/v14/arrow/memory"

	"backsim/services/engine"
)

// candleSchema is the Arrow layout of a cached candle stream.
var candleSchema = arrow.NewSchema([]arrow.Field{
	{Name: "timestamp", Type: arrow.PrimitiveTypes.Int64},
	{Name: "open", Type: arrow.PrimitiveTypes.Float64},
	{Name: "high", Type: arrow.PrimitiveTypes.Float64},
	{Name: "low", Type: arrow.PrimitiveTypes.Float64},
	{Name: "close", Type: arrow.PrimitiveTypes.Float64},
	{Name: "volume", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// WriteArrow serializes candles as one Arrow IPC stream record. The cache
// format avoids re-parsing CSV or re-querying the warehouse between
// optimization runs over the same data.
func WriteArrow(w io.Writer, candles []engine.Candle) error {
	if len(candles) == 0 {
		return &engine.DataError{Reason: "empty candle set"}
	}
	pool := memory.NewGoAllocator()

	tsB := array.NewInt64Builder(pool)
	defer tsB.Release()
	var priceB [5]*array.Float64Builder
	for i := range priceB {
		priceB[i] = array.NewFloat64Builder(pool)
		defer priceB[i].Release()
	}

	for _, c := range candles {
		tsB.Append(c.Timestamp)
		priceB[0].Append(c.Open)
		priceB[1].Append(c.High)
		priceB[2].Append(c.Low)
		priceB[3].Append(c.Close)
		priceB[4].Append(c.Volume)
	}

	cols := make([]arrow.Array, 0, 6)
	cols = append(cols, tsB.NewInt64Array())
	for i := range priceB {
		cols = append(cols, priceB[i].NewFloat64Array())
	}
	record := array.NewRecord(candleSchema, cols, int64(len(candles)))
	defer record.Release()
	for _, col := range cols {
		defer col.Release()
	}

	writer := ipc.NewWriter(w, ipc.WithSchema(candleSchema), ipc.WithAllocator(pool))
	if err := writer.Write(record); err != nil {
		return fmt.Errorf("write arrow record: %w", err)
	}
	return writer.Close()
}

// ReadArrow deserializes a candle stream written by WriteArrow.
func ReadArrow(r io.Reader) ([]engine.Candle, error) {
	reader, err := ipc.NewReader(r, ipc.WithAllocator(memory.NewGoAllocator()))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer reader.Release()

	var candles []engine.Candle
	for reader.Next() {
		rec := reader.Record()
		ts, ok := rec.Column(0).(*array.Int64)
		if !ok {
			return nil, &engine.DataError{Reason: "arrow cache: timestamp column is not int64"}
		}
		cols := make([]*array.Float64, 5)
		for i := range cols {
			col, ok := rec.Column(i + 1).(*array.Float64)
			if !ok {
				return nil, &engine.DataError{Reason: fmt.Sprintf("arrow cache: column %d is not float64", i+1)}
			}
			cols[i] = col
		}
		for i := 0; i < int(rec.NumRows()); i++ {
			candles = append(candles, engine.Candle{
				Timestamp: ts.Value(i),
				Open:      cols[0].Value(i),
				High:      cols[1].Value(i),
				Low:       cols[2].Value(i),
				Close:     cols[3].Value(i),
				Volume:    cols[4].Value(i),
			})
		}
	}
	if err := reader.Err(); err != nil && err != io.EOF {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	return candles, nil
}
