// Copyright 2025 James Ross
package store

import (
	"context"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
)

// StatsMirror asynchronously appends queue stats snapshots to ClickHouse as
// a time series for dashboards. It never blocks a claim: samples are
// dropped under backpressure rather than applying backpressure to callers.
type StatsMirror struct {
	conn   clickhouse.Conn
	log    *zap.Logger
	sample chan statsSample
	done   chan struct{}
}

type statsSample struct {
	table    string
	status   string
	count    int64
	takenUTC time.Time
}

// NewStatsMirror dials addr and starts the background drain goroutine. A
// nil *StatsMirror is valid and treated as disabled by Record/Close.
func NewStatsMirror(addr string, log *zap.Logger, bufferSize int) (*StatsMirror, error) {
	if addr == "" {
		return nil, nil
	}
	conn, err := clickhouse.Open(&clickhouse.Options{Addr: []string{addr}})
	if err != nil {
		return nil, err
	}
	m := &StatsMirror{
		conn:   conn,
		log:    log,
		sample: make(chan statsSample, bufferSize),
		done:   make(chan struct{}),
	}
	go m.drain()
	return m, nil
}

// Record enqueues a stats snapshot for mirroring. Called after
// WorkItemStats/JobStats with no effect on the caller's latency: the
// channel send is non-blocking and drops the sample if the buffer is full.
func (m *StatsMirror) Record(table string, snapshot Stats) {
	if m == nil {
		return
	}
	now := time.Now().UTC()
	for status, count := range snapshot.ByStatus {
		select {
		case m.sample <- statsSample{table: table, status: status, count: count, takenUTC: now}:
		default:
			if m.log != nil {
				m.log.Warn("stats mirror buffer full, dropping sample", zap.String("table", table), zap.String("status", status))
			}
		}
	}
}

func (m *StatsMirror) drain() {
	ctx := context.Background()
	for {
		select {
		case s := <-m.sample:
			err := m.conn.Exec(ctx, `
				INSERT INTO queue_stats (table_name, status, count, taken_utc) VALUES (?, ?, ?, ?)
			`, s.table, s.status, s.count, s.takenUTC)
			if err != nil && m.log != nil {
				m.log.Warn("stats mirror insert failed", zap.Error(err))
			}
		case <-m.done:
			return
		}
	}
}

// Close stops the drain goroutine and closes the underlying connection.
func (m *StatsMirror) Close() error {
	if m == nil {
		return nil
	}
	close(m.done)
	return m.conn.Close()
}
