package recovery

import "fmt"

// State is a stage of the account recovery chain. A run moves through the
// states in declaration order and stops at the first failure.
type State int

const (
	Start State = iota
	RequestValidated
	PrivateKeyLayerDecrypted
	ResponseDataDecrypted
	SymmetricKeyLayerDecrypted
	RecoveredKeyParsed
	RecoveredKeyReencrypted
	Done
)

var stateNames = [...]string{
	Start:                      "Start",
	RequestValidated:           "RequestValidated",
	PrivateKeyLayerDecrypted:   "PrivateKeyLayerDecrypted",
	ResponseDataDecrypted:      "ResponseDataDecrypted",
	SymmetricKeyLayerDecrypted: "SymmetricKeyLayerDecrypted",
	RecoveredKeyParsed:         "RecoveredKeyParsed",
	RecoveredKeyReencrypted:    "RecoveredKeyReencrypted",
	Done:                       "Done",
}

func (s State) String() string {
	if s < Start || s > Done {
		return fmt.Sprintf("State(%d)", int(s))
	}
	return stateNames[s]
}

// StepError reports the state a run failed to reach.
type StepError struct {
	State State
	Err   error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("account recovery failed before %s: %v", e.State, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
