package intake

import "fmt"

// Messages holds the user-facing texts shown by the widget.
type Messages struct {
	TooManyFiles string // %d is replaced with the limit
	Unsupported  string // %s is replaced with the file name
	NetworkError string
}

// DefaultMessages are the Japanese texts used by the web page.
var DefaultMessages = Messages{
	TooManyFiles: "ファイルは同時に%d枚までです。",
	Unsupported:  "サポートされていないファイル形式です: %s",
	NetworkError: "ネットワークエラーが発生しました。もう一度お試しください。",
}

func (m Messages) tooMany(max int) string { return fmt.Sprintf(m.TooManyFiles, max) }

func (m Messages) unsupported(name string) string { return fmt.Sprintf(m.Unsupported, name) }
