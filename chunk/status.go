package chunk

import "fmt"

// Status is the lifecycle state of a transfer session.
//
// Open -> Receiving -> Success | Failure | Timeout. Terminal states never change.
type Status int32

const (
	StatusOpen Status = iota
	StatusReceiving
	StatusSuccess
	StatusFailure
	StatusTimeout
)

func (s Status) String() string {
	switch s {
	case StatusOpen:
		return "open"
	case StatusReceiving:
		return "receiving"
	case StatusSuccess:
		return "success"
	case StatusFailure:
		return "failure"
	case StatusTimeout:
		return "timeout"
	}
	return fmt.Sprintf("Status(%d)", int32(s))
}

// Terminal reports whether s is a final state.
func (s Status) Terminal() bool { return s >= StatusSuccess }

// Failed reports whether s is a terminal state other than success.
func (s Status) Failed() bool { return s == StatusFailure || s == StatusTimeout }

// Well-known transfer channels.
const (
	ChannelServiceTemplate = "deploy_service_template"
	ChannelStaticService   = "deploy_static_service"
	ChannelSingleFile      = "deploy_single_file"
)
