package types

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/juju/errors"
	log "github.com/sirupsen/logrus"
)

type StatusType int32

const (
	None    StatusType = 0
	Pending StatusType = 1
	Running StatusType = 2
	Success StatusType = 3
	Failed  StatusType = 4
	Skipped StatusType = 5
)

var statusNames = map[StatusType]string{
	None:    "none",
	Pending: "pending",
	Running: "running",
	Success: "success",
	Failed:  "failed",
	Skipped: "skipped",
}

func (s StatusType) String() string {
	if name, exists := statusNames[s]; exists {
		return name
	}
	return fmt.Sprintf("status(%d)", int32(s))
}

// IsContinue reports whether the walk goes on after a node finished with s.
func (s StatusType) IsContinue() bool {
	return s == Success || s == Skipped
}

func (s StatusType) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *StatusType) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return errors.Trace(err)
	}
	for status, n := range statusNames {
		if n == name {
			*s = status
			return nil
		}
	}
	return errors.NotValidf("status %q", name)
}

// Context is handed to every node handler and hook of a single run.
type Context interface {
	context.Context

	GetRequestID() string
	GetRunID() string
	GetPipeline() string
	GetCurrentNode() string
	Logger() *log.Entry
}
