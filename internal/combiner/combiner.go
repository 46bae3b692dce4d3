// Package combiner merges per-company analysis rows into one markdown table.
package combiner

import (
	"errors"
	"strings"

	"github.com/joseph-ayodele/bill-extractor/constants"
)

const (
	Header    = "| 番号 | サービス | 金額(円) | 備考 |"
	Separator = "| --- | --- | --- | --- |"
)

// ErrEmptyResult means no company produced any data rows.
var ErrEmptyResult = errors.New("抽出されたデータ行がありません")

// Combine joins the non-blank results in constants.Companies order under the
// fixed header. The output ends with a newline.
func Combine(results map[constants.Company]string) (string, error) {
	var rows []string
	for _, c := range constants.Companies {
		if text := strings.TrimSpace(results[c]); text != "" {
			rows = append(rows, text)
		}
	}
	if len(rows) == 0 {
		return "", ErrEmptyResult
	}
	return Header + "\n" + Separator + "\n" + strings.Join(rows, "\n") + "\n", nil
}
