package domain

// AudioFrame is one encoded chunk of audio plus the codec it declares.
// It carries no sequence number: order is whatever the transport preserved.
type AudioFrame struct {
	Data     []byte `json:"data"`
	MimeType string `json:"mimeType"`
}

func (f AudioFrame) Empty() bool { return len(f.Data) == 0 }
