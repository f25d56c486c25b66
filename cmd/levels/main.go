package main

import (
	"flag"
	"fmt"
	"os"

	"fib-retest-bot/internal/config"
	"fib-retest-bot/internal/levels"
	"fib-retest-bot/internal/trade"
)

func main() {
	configPath := flag.String("config", "", "optional config path; trade parameters are read from it when flags are absent")
	low := flag.Float64("low", 0, "fib range low")
	high := flag.Float64("high", 0, "fib range high")
	side := flag.String("side", "buy", "trade side (buy/sell)")
	qty := flag.Float64("qty", 1.0, "position quantity")
	flag.Parse()

	fibLow, fibHigh, quantity := *low, *high, *qty
	sideName := *side
	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			fatal(err)
		}
		if fibLow == 0 && fibHigh == 0 {
			fibLow, fibHigh = cfg.Trade.FibLow, cfg.Trade.FibHigh
			sideName = cfg.Trade.Side
			quantity = cfg.Trade.Quantity
		}
	}

	dir, err := trade.ParseSide(sideName)
	if err != nil {
		fatal(err)
	}
	table, err := levels.Compute(fibLow, fibHigh, dir)
	if err != nil {
		fatal(err)
	}

	fmt.Printf("retracement levels: range=[%v, %v] side=%s qty=%v\n", fibLow, fibHigh, dir, quantity)
	fmt.Println("ratio   target        weight  exit_qty")
	total := 0.0
	for _, lv := range table {
		exit := quantity * lv.Weight
		total += exit
		fmt.Printf("%.3f   %-12.6g  %.2f    %.6g\n", lv.Ratio, lv.Target, lv.Weight, exit)
	}
	fmt.Printf("total exit quantity: %.6g\n", total)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
