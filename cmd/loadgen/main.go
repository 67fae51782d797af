// Stress driver for the matching engine: floods the book with random
// limit and market orders and reports throughput. Useful with pprof when
// tuning the level structures.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"runtime/pprof"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"pricesim/engine"
)

func main() {
	totalOrders := flag.Int("orders", 500000, "number of orders to submit")
	priceLevels := flag.Int("price-levels", 200, "unique price ticks around the mid")
	basePrice := flag.Int64("base-price", 2000, "mid price in ticks")
	cancelEvery := flag.Int("cancel-every", 0, "cancel a random earlier order every N submissions")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for the random order stream")
	cpuProfile := flag.String("cpuprofile", "", "write cpu profile to file")
	memProfile := flag.String("memprofile", "", "write heap profile to file")
	marketRatio := flag.Int("market-ratio", 5, "1 in N orders will be market instead of limit")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			panic(err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			panic(err)
		}
		defer pprof.StopCPUProfile()
	}

	book := engine.NewOrderBook()
	now := time.Now().UTC()

	var matches int64
	start := time.Now()
	for i := 0; i < *totalOrders; i++ {
		order := nextRandomOrder(rng, i, *basePrice, *priceLevels, *marketRatio)
		_, trades, err := book.AddLimit(order, now)
		if err != nil {
			fmt.Fprintf(os.Stderr, "submit failed: %v\n", err)
			continue
		}
		matches += int64(len(trades))
		if *cancelEvery > 0 && i > 0 && i%*cancelEvery == 0 {
			target := rng.Intn(i)
			book.Cancel("lg-"+strconv.Itoa(target), now)
		}
	}
	elapsed := time.Since(start)

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err == nil {
			defer f.Close()
			_ = pprof.WriteHeapProfile(f)
		}
	}

	ordersPerSec := float64(*totalOrders) / elapsed.Seconds()
	tradesPerSec := float64(matches) / elapsed.Seconds()

	fmt.Printf("submitted %d orders in %s (%.0f orders/s)\n", *totalOrders, elapsed.Truncate(time.Millisecond), ordersPerSec)
	fmt.Printf("matched %d fills (%.0f trades/s)\n", matches, tradesPerSec)
	fmt.Printf("resting orders at exit: %d\n", len(book.ActiveOrderIDs()))
}

func nextRandomOrder(rng *rand.Rand, id int, mid int64, width int, marketRatio int) engine.Order {
	side := engine.Buy
	if rng.Intn(2) == 1 {
		side = engine.Sell
	}

	kind := engine.Limit
	if marketRatio > 0 && rng.Intn(marketRatio) == 0 {
		kind = engine.Market
	}

	order := engine.Order{
		ID:       "lg-" + strconv.Itoa(id),
		Side:     side,
		Kind:     kind,
		Quantity: rng.Int63n(5) + 1,
	}

	if kind == engine.Limit {
		ticks := mid + int64(rng.Intn(width)) - int64(width/2)
		if ticks < 1 {
			ticks = 1
		}
		order.Price = decimal.NewFromInt(ticks).Div(decimal.NewFromInt(100))
	}
	return order
}
