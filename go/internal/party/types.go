package party

// WriteMode selects how list mutations reach the store.
type WriteMode string

const (
	// WriteOverwrite rewrites whole collections computed from the caller's
	// copy of the party. Concurrent writers can silently drop each other's
	// changes.
	WriteOverwrite WriteMode = "overwrite"
	// WriteAtomic applies each mutation inside a store transaction on the
	// party node.
	WriteAtomic WriteMode = "atomic"
)

// Config tunes the gateway.
type Config struct {
	WriteMode            WriteMode `yaml:"write_mode"`
	RejectDuplicateVotes bool      `yaml:"reject_duplicate_votes"`
	// AwaitWrites=false queues writes in the background and only logs
	// failures. AddTrackToQueue and atomic joins always wait.
	AwaitWrites bool `yaml:"await_writes"`
}

// DefaultConfig returns atomic, awaited writes with duplicate votes allowed.
func DefaultConfig() Config {
	return Config{
		WriteMode:   WriteAtomic,
		AwaitWrites: true,
	}
}

// CreatePartyRequest represents the data needed to start a party
type CreatePartyRequest struct {
	Name        string `json:"name"`
	HostName    string `json:"host_name"`
	AccessToken string `json:"access_token"`
}

// JoinPartyRequest represents the data needed to join a party
type JoinPartyRequest struct {
	Name string `json:"name"`
}
