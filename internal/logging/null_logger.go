package logging

import "github.com/vvka-141/sqlpool/pkg/sqlpool"

// NullLogger drops everything. Library callers that pass no logger get one.
type NullLogger struct{}

var _ sqlpool.Logger = NullLogger{}

func NewNullLogger() *NullLogger { return &NullLogger{} }

func (NullLogger) Verbose(string, ...interface{}) {}
func (NullLogger) Info(string, ...interface{})    {}
func (NullLogger) Error(string, ...interface{})   {}
