package agent

import (
	"context"
	"fmt"

	"github.com/sarchlab/wifictl/datarecording"
	"github.com/sarchlab/wifictl/protocol"
)

// ExchangeTable is the table that holds one row per exchange.
const ExchangeTable = "exchange"

// ExchangeEntry is one exchange as seen by the control process.
type ExchangeEntry struct {
	PosX           float64
	PosY           float64
	Distance       float64
	DLThroughput   float64
	ULThroughput   float64
	CurrentTxPower int32
	StationID      int32
	SimTime        float64
	NewTxPower     float64
}

// NewExchangeEntry combines a received message and the answer to it.
func NewExchangeEntry(
	env protocol.EnvironmentMessage,
	newTxPower float64,
) ExchangeEntry {
	return ExchangeEntry{
		PosX:           env.PosX,
		PosY:           env.PosY,
		Distance:       env.Distance,
		DLThroughput:   env.DLThroughput,
		ULThroughput:   env.ULThroughput,
		CurrentTxPower: env.CurrentTxPower,
		StationID:      env.StationID,
		SimTime:        env.SimTime,
		NewTxPower:     newTxPower,
	}
}

// Recorder writes exchanges into a DataRecorder.
type Recorder struct {
	recorder datarecording.DataRecorder
}

// NewRecorder creates the exchange table in recorder.
func NewRecorder(recorder datarecording.DataRecorder) *Recorder {
	recorder.CreateTable(ExchangeTable, ExchangeEntry{})

	return &Recorder{recorder: recorder}
}

// Record buffers one exchange.
func (r *Recorder) Record(entry ExchangeEntry) {
	r.recorder.InsertData(ExchangeTable, entry)
}

// Flush writes the buffered exchanges.
func (r *Recorder) Flush() {
	r.recorder.Flush()
}

// LoadExchanges reads every exchange recorded in a SQLite file, ordered by
// time and station.
func LoadExchanges(ctx context.Context, path string) ([]ExchangeEntry, error) {
	reader, err := datarecording.NewReader(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	reader.MapTable(ExchangeTable, ExchangeEntry{})

	rows, _, err := reader.Query(ctx, ExchangeTable, datarecording.QueryParams{
		OrderBy: "SimTime, StationID",
	})
	if err != nil {
		return nil, fmt.Errorf("reading exchanges from %s: %w", path, err)
	}

	entries := make([]ExchangeEntry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, *row.(*ExchangeEntry))
	}

	return entries, nil
}
