package audio

// Device represents an available audio input device.
type Device struct {
	// ID is the device identifier passed to the capture command.
	ID string `json:"id"`
	// Name is the device display name.
	Name string `json:"name"`
}
