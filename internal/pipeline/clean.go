package pipeline

import (
	"sort"

	"ashare-data-lab/internal/domain"
)

// cleanBars normalizes raw bars into clean bars. The policy is
// deterministic given identical input:
//   - rows with an empty key or a missing close are dropped and counted
//   - duplicate (ts_code, trade_date) rows resolve latest-wins on ingest_seq
//   - open/high/low default to close when the vendor omitted them
//   - volume/amount default to zero
//   - a missing pre_close is filled from the previous bar's close, or from
//     the bar's own close when there is no previous bar
func cleanBars(raw []*domain.DailyBar) ([]*domain.CleanBar, int) {
	dropped := 0

	type key struct{ code, date string }
	latest := make(map[key]*domain.DailyBar, len(raw))
	for _, b := range raw {
		if b.TSCode == "" || b.TradeDate == "" || b.Close == nil {
			dropped++
			continue
		}
		k := key{b.TSCode, b.TradeDate}
		if existing, ok := latest[k]; ok && existing.IngestSeq >= b.IngestSeq {
			continue
		}
		latest[k] = b
	}

	bars := make([]*domain.DailyBar, 0, len(latest))
	for _, b := range latest {
		bars = append(bars, b)
	}
	sort.Slice(bars, func(i, j int) bool {
		if bars[i].TSCode != bars[j].TSCode {
			return bars[i].TSCode < bars[j].TSCode
		}
		return bars[i].TradeDate < bars[j].TradeDate
	})

	cleaned := make([]*domain.CleanBar, 0, len(bars))
	prevClose := make(map[string]float64, 8)
	for _, b := range bars {
		close := *b.Close

		c := &domain.CleanBar{
			TSCode:    b.TSCode,
			TradeDate: b.TradeDate,
			Close:     close,
			Open:      orDefault(b.Open, close),
			High:      orDefault(b.High, close),
			Low:       orDefault(b.Low, close),
			Volume:    orDefault(b.Volume, 0),
			Amount:    orDefault(b.Amount, 0),
		}

		switch {
		case b.PreClose != nil:
			c.PreClose = *b.PreClose
		default:
			if prev, ok := prevClose[b.TSCode]; ok {
				c.PreClose = prev
			} else {
				c.PreClose = close
			}
		}

		prevClose[b.TSCode] = close
		cleaned = append(cleaned, c)
	}

	return cleaned, dropped
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
