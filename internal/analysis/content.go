package analysis

import (
	"encoding/json"
	"fmt"

	"github.com/manuham/fx-coordinator/internal/domain"
	"github.com/manuham/fx-coordinator/internal/llm"
)

type chartFrame struct {
	label string
	data  []byte
}

// chartContent interleaves a text label and the compressed image for
// each frame. Missing screenshots are skipped so older terminals that
// send fewer charts still work.
func chartContent(frames []chartFrame) []llm.ContentBlock {
	var content []llm.ContentBlock
	for _, f := range frames {
		if len(f.data) == 0 {
			continue
		}
		compressed, mediaType := compressImage(f.data)
		content = append(content,
			llm.TextBlock(fmt.Sprintf("--- %s Chart ---", f.label)),
			llm.ImageBlock(mediaType, encodeImage(compressed)),
		)
	}
	return content
}

// marketDataBlock renders the snapshot as pretty JSON with the OHLC
// arrays stripped. The screenshots already carry the candles visually;
// dropping the arrays saves a few thousand input tokens per call.
func marketDataBlock(header string, m domain.MarketData) llm.ContentBlock {
	m.OHLCD1 = nil
	m.OHLCH4 = nil
	m.OHLCH1 = nil
	m.OHLCM5 = nil

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		data = []byte("{}")
	}
	return llm.TextBlock(header + "\n" + string(data))
}
