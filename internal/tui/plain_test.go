package tui

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/bill-extractor/internal/entity"
	"github.com/joseph-ayodele/bill-extractor/internal/intake"
)

func TestLineRenderer(t *testing.T) {
	tests := []struct {
		name string
		sub  stubSubmitter
		want string
	}{
		{
			name: "success",
			sub:  stubSubmitter{resp: entity.ExtractSucceeded("https://x", "f.xlsx")},
			want: "処理中です...\n完了: f.xlsx\nhttps://x\n",
		},
		{
			name: "application failure",
			sub:  stubSubmitter{resp: entity.ExtractFailed("bad input")},
			want: "処理中です...\nエラー: bad input\n",
		},
		{
			name: "network failure",
			sub:  stubSubmitter{err: errors.New("dial tcp: refused")},
			want: "処理中です...\nエラー: " + intake.DefaultMessages.NetworkError + "\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			w := intake.New(NewLineRenderer(&out), tt.sub)
			require.NoError(t, w.AddFiles(intake.NewBytesFile("a.pdf", nil)))
			_ = w.Submit(context.Background())
			assert.Equal(t, tt.want, out.String())
		})
	}
}

func TestLineRenderer_Alerts(t *testing.T) {
	var out bytes.Buffer
	w := intake.New(NewLineRenderer(&out), stubSubmitter{})
	_ = w.AddFiles(intake.NewBytesFile("b.exe", nil))
	assert.Equal(t, "! サポートされていないファイル形式です: b.exe\n", out.String())
}
