package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/chrissnell/laistats/internal/records"
	"github.com/chrissnell/laistats/internal/scenario"
	"github.com/stretchr/testify/assert"
)

type recordingSink struct {
	stored   []string
	storeErr error
	closeErr error
	closed   bool
}

func (s *recordingSink) StoreRun(ctx context.Context, run Run, tbl records.Table, rows []scenario.Row) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stored = append(s.stored, run.ID)
	return nil
}

func (s *recordingSink) Close() error {
	s.closed = true
	return s.closeErr
}

func TestMultiSinkStopsAtFirstError(t *testing.T) {
	boom := errors.New("boom")
	a, b, c := &recordingSink{}, &recordingSink{storeErr: boom}, &recordingSink{}

	err := MultiSink{a, b, c}.StoreRun(context.Background(), Run{ID: "r1"}, nil, nil)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"r1"}, a.stored)
	assert.Empty(t, c.stored)
}

func TestMultiSinkClosesAll(t *testing.T) {
	e1, e2 := errors.New("first"), errors.New("second")
	a, b, c := &recordingSink{closeErr: e1}, &recordingSink{}, &recordingSink{closeErr: e2}

	err := MultiSink{a, b, c}.Close()
	assert.ErrorIs(t, err, e1)
	assert.ErrorIs(t, err, e2)
	assert.True(t, b.closed)

	assert.NoError(t, MultiSink(nil).Close())
}
