package fsm

// BuildRequest is the FSM input
type BuildRequest struct {
	RunKey            string
	SourceISO         string
	PreseedPath       string
	PostInstallConfig string
	OutputPath        string
	SkipFlash         bool
}

// BuildResponse is the FSM output (accumulated across transitions)
type BuildResponse struct {
	// From CheckDB
	BuildID int64

	// From GenerateScript
	Script string

	// From Stage
	StagedDir string

	// From Build
	OutputPath string
	OutputSize int64
	SHA256     string

	// From Flash
	FlashState   string
	DevicePath   string
	BytesWritten int64

	// From Complete/Failed
	Status       string
	ErrorMessage string
}

// State names
const (
	StateCheckDB        = "check_db"
	StateGenerateScript = "generate_script"
	StateStage          = "stage"
	StateBuild          = "build"
	StateFlash          = "flash"
	StateComplete       = "complete"
	StateFailed         = "failed"
)

// Flash terminal outcomes recorded in the response
const (
	FlashDone      = "done"
	FlashDeclined  = "declined"
	FlashNoneFound = "none_found"
	FlashSkipped   = "skipped"
)
