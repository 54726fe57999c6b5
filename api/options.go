package api

import "errors"

var (
	// ErrNilOptions is returned by NewServer when passed a nil *Options.
	ErrNilOptions = errors.New("api: nil options")
	// ErrInvalidID is returned by Options.Validate for an empty Id.
	ErrInvalidID = errors.New("api: empty id")
	// ErrInvalidListenHost is returned by Options.Validate for an empty ListenHost.
	ErrInvalidListenHost = errors.New("api: empty listen host")
	// ErrInvalidListenPort is returned by Options.Validate for a non-positive ListenPort.
	ErrInvalidListenPort = errors.New("api: invalid listen port")
)

// Options configures the inspection/control HTTP server.
type Options struct {
	ID           string `json:"id" yaml:"id"`
	PathPrefix   string `json:"path_prefix,omitempty" yaml:"path_prefix,omitempty"`
	ListenHost   string `json:"listen_host" yaml:"listen_host"`
	ListenPort   int    `json:"listen_port" yaml:"listen_port"`
	ReadTimeout  int64  `json:"read_timeout_ms,omitempty" yaml:"read_timeout_ms,omitempty"`
	WriteTimeout int64  `json:"write_timeout_ms,omitempty" yaml:"write_timeout_ms,omitempty"`
}

// Validate checks the minimum fields required to bind a listener.
func (o Options) Validate() error {
	if o.ID == "" {
		return ErrInvalidID
	}
	if o.ListenHost == "" {
		return ErrInvalidListenHost
	}
	if o.ListenPort <= 0 {
		return ErrInvalidListenPort
	}
	return nil
}

// DefaultOptions returns sane defaults for local/dev use.
func DefaultOptions() *Options {
	return &Options{
		ID:           "tasksemaphore-api",
		ListenHost:   "localhost",
		ListenPort:   8080,
		ReadTimeout:  20000,
		WriteTimeout: 20000,
	}
}
