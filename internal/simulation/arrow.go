package simulation

import (
	"bytes"
	"fmt"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/apache/arrow/go/v17/arrow/array"
	"github.com/apache/arrow/go/v17/arrow/ipc"
	"github.com/apache/arrow/go/v17/arrow/memory"
)

// spikeSchema is the Arrow schema of one population's spike file.
var spikeSchema = arrow.NewSchema([]arrow.Field{
	{Name: "neuron_id", Type: arrow.PrimitiveTypes.Int64},
	{Name: "spike_time", Type: arrow.PrimitiveTypes.Float64},
}, nil)

// EncodeTrain writes t as an Arrow IPC stream holding one record batch.
func EncodeTrain(t *Train) ([]byte, error) {
	mem := memory.NewGoAllocator()
	b := array.NewRecordBuilder(mem, spikeSchema)
	defer b.Release()

	b.Field(0).(*array.Int64Builder).AppendValues(t.NeuronIDs, nil)
	b.Field(1).(*array.Float64Builder).AppendValues(t.Times, nil)
	rec := b.NewRecord()
	defer rec.Release()

	var buf bytes.Buffer
	w := ipc.NewWriter(&buf, ipc.WithSchema(spikeSchema), ipc.WithAllocator(mem))
	if err := w.Write(rec); err != nil {
		w.Close()
		return nil, fmt.Errorf("write arrow record: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close arrow writer: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeTrain reads an Arrow IPC stream written by EncodeTrain.
func DecodeTrain(data []byte) (*Train, error) {
	mem := memory.NewGoAllocator()
	r, err := ipc.NewReader(bytes.NewReader(data), ipc.WithAllocator(mem))
	if err != nil {
		return nil, fmt.Errorf("open arrow stream: %w", err)
	}
	defer r.Release()

	if !r.Schema().Equal(spikeSchema) {
		return nil, fmt.Errorf("unexpected schema %s", r.Schema())
	}
	t := &Train{}
	batches := 0
	for r.Next() {
		rec := r.Record()
		ids, ok := rec.Column(0).(*array.Int64)
		if !ok {
			return nil, fmt.Errorf("neuron_id column has type %s", rec.Column(0).DataType())
		}
		times, ok := rec.Column(1).(*array.Float64)
		if !ok {
			return nil, fmt.Errorf("spike_time column has type %s", rec.Column(1).DataType())
		}
		if ids.NullN() > 0 || times.NullN() > 0 {
			return nil, fmt.Errorf("record %d contains nulls", batches)
		}
		// Values alias the reader's buffers; copy before the next record.
		t.NeuronIDs = append(t.NeuronIDs, ids.Int64Values()...)
		t.Times = append(t.Times, times.Float64Values()...)
		batches++
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("read arrow stream: %w", err)
	}
	if batches == 0 {
		return nil, fmt.Errorf("arrow stream has no record batch")
	}
	return t, nil
}
