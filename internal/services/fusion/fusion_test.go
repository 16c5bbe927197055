package fusion

import (
	"testing"

	"SolSignal/internal/domain/models"
)

func TestResolveTieBreak(t *testing.T) {
	cases := []struct {
		b, s       int
		action     models.Action
		confidence float64
	}{
		{3, 3, models.ActionHold, 0.5},
		{4, 2, models.ActionBuy, 4.0 / 6.0},
		{2, 4, models.ActionSell, 4.0 / 6.0},
		{4, 0, models.ActionBuy, 1.0},
		{0, 4, models.ActionSell, 1.0},
		{2, 1, models.ActionHold, 0.5},
		{1, 2, models.ActionHold, 0.5},
		{0, 0, models.ActionHold, 0.5},
	}
	for _, c := range cases {
		action, confidence := Resolve(c.b, c.s)
		if action != c.action || confidence != c.confidence {
			t.Fatalf("resolve(%d,%d) = %v %v, want %v %v", c.b, c.s, action, confidence, c.action, c.confidence)
		}
	}
}

func TestDecideFullyBullish(t *testing.T) {
	trend := models.TrendPrediction{Label: models.TrendBullish, Confidence: 0.8}
	rsi := ClassifyRSI(25)
	macd := ClassifyMACD(0.1)
	action, confidence, b, s := Decide(trend, rsi, macd)
	if b != 4 || s != 0 {
		t.Fatalf("points = %d/%d, want 4/0", b, s)
	}
	if action != models.ActionBuy || confidence != 1.0 {
		t.Fatalf("decide = %v %v, want BUY 1.0", action, confidence)
	}
}

func TestDecideNeutralTrendHolds(t *testing.T) {
	trend := models.TrendPrediction{Label: models.TrendNeutral, Confidence: 0.5}
	action, confidence, b, s := Decide(trend, ClassifyRSI(50), ClassifyMACD(0))
	if b != 0 || s != 1 {
		t.Fatalf("points = %d/%d, want 0/1", b, s)
	}
	if action != models.ActionHold || confidence != 0.5 {
		t.Fatalf("decide = %v %v, want HOLD 0.5", action, confidence)
	}
}

func TestDecideBearishStack(t *testing.T) {
	trend := models.TrendPrediction{Label: models.TrendBearish, Confidence: 0.7}
	action, confidence, b, s := Decide(trend, ClassifyRSI(75), ClassifyMACD(-0.2))
	if b != 0 || s != 4 {
		t.Fatalf("points = %d/%d, want 0/4", b, s)
	}
	if action != models.ActionSell || confidence != 1.0 {
		t.Fatalf("decide = %v %v, want SELL 1.0", action, confidence)
	}
}

func TestClassifyRSIBands(t *testing.T) {
	cases := []struct {
		v     float64
		state string
	}{
		{25, models.StateOversold},
		{30, models.StateNeutral},
		{50, models.StateNeutral},
		{70, models.StateNeutral},
		{75, models.StateOverbought},
	}
	for _, c := range cases {
		if got := ClassifyRSI(c.v); got.State != c.state || got.Value != c.v {
			t.Fatalf("classify rsi %v = %+v, want %s", c.v, got, c.state)
		}
	}
}

func TestClassifyMACDZeroIsBearish(t *testing.T) {
	if got := ClassifyMACD(0.1); got.State != models.TrendBullish {
		t.Fatalf("macd 0.1 = %+v", got)
	}
	if got := ClassifyMACD(0); got.State != models.TrendBearish {
		t.Fatalf("macd 0 = %+v", got)
	}
	if got := ClassifyMACD(-0.1); got.State != models.TrendBearish {
		t.Fatalf("macd -0.1 = %+v", got)
	}
}
