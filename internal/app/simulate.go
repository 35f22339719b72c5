package app

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"momentum-alerts/internal/alerting"
	"momentum-alerts/internal/scanner"
)

// SimulateAlert 用给定的入场价与 ATR 构造一条合成信号并走告警通道，
// 便于验证 Telegram 配置。不触碰数据库。
func (a *App) SimulateAlert(ctx context.Context, ticker string, entry, atr float64) error {
	if !a.Config.Alerting.Enabled {
		return errors.New("alerting 未启用")
	}

	notifier := a.newNotifier()
	if notifier == nil {
		return errors.New("未配置任何告警通道")
	}

	engine := scanner.NewEngine(scanner.EngineOptions{
		Capital:            a.Config.Scanner.Capital,
		RiskFraction:       a.Config.Scanner.RiskFraction,
		TargetUpside:       a.Config.Scanner.TargetUpside,
		ATRStopMultiple:    a.Config.Scanner.ATRStopMultiple,
		LiquidityThreshold: a.Config.Scanner.LiquidityThreshold,
	})

	entryDec := decimal.NewFromFloat(entry)
	stop := entryDec.Sub(decimal.NewFromFloat(a.Config.Scanner.ATRStopMultiple * atr))
	target := entryDec.Mul(decimal.NewFromFloat(1 + a.Config.Scanner.TargetUpside))
	earnings := time.Now().UTC().AddDate(0, 0, 30)

	alert := alerting.SignalAlert{
		Ticker:       ticker,
		Entry:        entryDec,
		Target:       target,
		Stop:         stop,
		PositionSize: engine.PositionSize(entryDec, stop),
		RSI:          55.0,
		News:         []string{"Simulated alert, not a real signal"},
		EarningsDate: &earnings,
	}
	return notifier.NotifySignal(ctx, alert)
}
