package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/defistate/midmatch-go/engine"
	"github.com/defistate/midmatch-go/patcher"
	"github.com/defistate/midmatch-go/protocols/feepool"
	"github.com/defistate/midmatch-go/protocols/feepool/feemath"
	"github.com/defistate/midmatch-go/protocols/feepool/indexer"
	"github.com/defistate/midmatch-go/streams/jsonrpc/client"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// --- VISUAL CONSTANTS ---
const (
	Reset  = "\033[0m"
	Bold   = "\033[1m"
	Red    = "\033[31m"
	Green  = "\033[32m"
	Yellow = "\033[33m"
	Cyan   = "\033[36m"
	Gray   = "\033[37m"

	DefaultClientStateBufferSize = 100
)

// header prints a styled section header
func header(title string) {
	fmt.Println("\n" + Bold + Cyan + ":: " + title + " ::" + Reset)
}

// SafeState is a thread-safe container for the latest engine state.
type SafeState struct {
	mu    sync.RWMutex
	state *engine.State
}

func (s *SafeState) Update(newState *engine.State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = newState
}

func (s *SafeState) Get() *engine.State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func main() {
	// --- 1. SETUP LOGGING (To File) ---
	logFile, err := os.OpenFile("console.log", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		panic(fmt.Sprintf("Failed to open log file: %v", err))
	}
	defer logFile.Close()

	rootLogger := slog.New(slog.NewJSONHandler(logFile, nil))

	closeApp := func() {
		fmt.Println("\n" + Red + "Fatal error occurred. Check console.log for details." + Reset)
		os.Exit(1)
	}

	// --- 2. FLAGS & CONTEXT ---
	url := flag.String("url", "ws://localhost:8546", "Websocket URL of the midmatchd state stream.")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- 3. INITIALIZE CLIENT ---
	statePatcher, err := patcher.NewStatePatcher(&patcher.StatePatcherConfig{})
	if err != nil {
		rootLogger.Error("Failed to initialize state patcher", "error", err)
		closeApp()
	}

	client, err := client.NewClient(
		ctx,
		client.Config{
			URL:          *url,
			Logger:       rootLogger.With("component", "jsonrpc-client"),
			BufferSize:   DefaultClientStateBufferSize,
			StatePatcher: statePatcher.Patch,
		},
	)
	if err != nil {
		rootLogger.Error("Failed to initialize Client", "url", *url, "error", err)
		closeApp()
	}

	// --- 4. START CONSOLE & STATE LOOP ---
	safeState := &SafeState{}

	fmt.Println(Green + "Starting MidMatch Console..." + Reset)
	fmt.Println("Logs are being written to 'console.log'")
	go runConsole(ctx, safeState)

	for {
		select {
		case n := <-client.State():
			safeState.Update(n)

		case err := <-client.Err():
			rootLogger.Error("Fatal client error", "error", err)
			closeApp()

		case <-ctx.Done():
			fmt.Println("\n" + Yellow + "Shutting down..." + Reset)
			return
		}
	}
}

// runConsole handles user input and display.
func runConsole(ctx context.Context, safeState *SafeState) {
	reader := bufio.NewReader(os.Stdin)
	time.Sleep(500 * time.Millisecond)

	for {
		if ctx.Err() != nil {
			return
		}

		printMenu()

		fmt.Print(Bold + "Enter selection: " + Reset)
		input, err := reader.ReadString('\n')
		if err != nil {
			fmt.Println("Error reading input:", err)
			continue
		}
		input = strings.TrimSpace(input)

		handleCommand(input, safeState, reader)

		fmt.Println("\n" + Gray + "[Press Enter to continue]" + Reset)
		reader.ReadString('\n')
	}
}

func printMenu() {
	fmt.Print("\033[H\033[2J") // Clear screen
	fmt.Println(Bold + "MIDMATCH CONSOLE" + Reset + Gray + " | v0.1.0" + Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %s1.%s Stream Status\n", Cyan, Reset)
	fmt.Printf(" %s2.%s Pair Summary\n", Cyan, Reset)
	fmt.Printf(" %s3.%s Fee Ladder  %s(by Pair/Token)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s4.%s Watch Ladder %s(Live Monitor)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s5.%s Quote Fee   %s(Amount through a tier)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Printf(" %s6.%s Insert Hints %s(Neighbours of a new tier)%s\n", Cyan, Reset, Gray, Reset)
	fmt.Println(Gray + "-----------------------------------" + Reset)
	fmt.Printf(" %sh.%s Help\n", Yellow, Reset)
	fmt.Printf(" %sq.%s Quit\n", Red, Reset)
	fmt.Println("")
}

func handleCommand(input string, safeState *SafeState, reader *bufio.Reader) {
	state := safeState.Get()

	// Allow help and quit even if state isn't ready
	if state == nil && input != "q" && input != "h" {
		fmt.Println("\n" + Yellow + "[INFO] Waiting for first state update... (Check connection/logs)" + Reset)
		return
	}

	switch input {
	case "1":
		printStreamStatus(state)
	case "2":
		printPairSummary(state)
	case "3":
		if ps, token, ok := readPairAndToken(state, reader); ok {
			printLadder(ps.Books[token])
		}
	case "4":
		watchLadder(safeState, reader)
	case "5":
		quoteFee(state, reader)
	case "6":
		printHints(state, reader)
	case "h":
		printHelp()
	case "q":
		exitConsole()
	default:
		fmt.Println(Red + "Unknown command." + Reset)
	}
}

// --- COMMAND HANDLERS ---

func printHelp() {
	fmt.Print("\033[H\033[2J")

	header("MIDMATCH STATE STREAM")
	fmt.Println("Every token of a trading pair has a " + Cyan + "fee book" + Reset + ": a list of fee pools")
	fmt.Println("ordered by fee, each tier linked to its neighbours by " + Yellow + "prevFee" + Reset + " and " + Yellow + "nextFee" + Reset + ".")
	fmt.Println("Fee 0 is the list sentinel and never names a pool.")
	fmt.Println("")
	fmt.Println(Bold + "Inserting a tier" + Reset)
	fmt.Println("   A new tier is inserted with two hints: the fee just below it and the fee just")
	fmt.Println("   above it (0 at either end). The book checks the hints rather than searching.")
	fmt.Println("   Option 6 shows the hints a new tier needs against the current book.")
	fmt.Println("")
	fmt.Println(Bold + "The stream" + Reset)
	fmt.Println("   The daemon sends a full state, then one diff per committed mutation.")
	fmt.Println("   Sequences are contiguous; a gap makes the client resubscribe.")
}

func printStreamStatus(state *engine.State) {
	ts := time.Unix(0, int64(state.Timestamp)).Format("15:04:05")

	fmt.Printf("\n%sSTATUS  ::%s Sequence %s#%d%s | Pairs %s%d%s | Pools %s%d%s | Time %s%s%s\n",
		Green, Reset,
		Bold, state.Sequence, Reset,
		Bold, len(state.Pairs), Reset,
		Bold, state.PoolCount(), Reset,
		Bold, ts, Reset,
	)
}

func sortedPairs(state *engine.State) []engine.PairState {
	pairs := make([]engine.PairState, 0, len(state.Pairs))
	for _, p := range state.Pairs {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool {
		return pairs[i].Meta.Address.Cmp(pairs[j].Meta.Address) < 0
	})
	return pairs
}

func printPairSummary(state *engine.State) {
	header("PAIR SUMMARY")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "PAIR\tTOKEN0\tTOKEN1\tPOOLS\tCHEAPEST0\tCHEAPEST1\t")
	fmt.Fprintln(w, "----\t------\t------\t-----\t---------\t---------\t")
	for _, p := range sortedPairs(state) {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\t\n",
			shortAddr(p.Meta.Address),
			shortAddr(p.Meta.Token0),
			shortAddr(p.Meta.Token1),
			p.PoolCount(),
			feeLabel(p.Books[p.Meta.Token0].LowestFee),
			feeLabel(p.Books[p.Meta.Token1].LowestFee),
		)
	}
	w.Flush()
}

func printLadder(view feepool.FeePoolRegistryView) {
	header(fmt.Sprintf("FEE LADDER (%d pools)", view.PoolCount))
	if view.PoolCount == 0 {
		fmt.Println(Yellow + "[INFO] The book is empty." + Reset)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 4, ' ', 0)
	fmt.Fprintln(w, "FEE\tKEY\tPREV\tNEXT\tPROTOCOL\tLIQUIDITY\tQUEUE\t")
	fmt.Fprintln(w, "---\t---\t----\t----\t--------\t---------\t-----\t")
	// Pools are in list order, lowest fee first.
	for _, p := range view.Pools {
		fmt.Fprintf(w, "%s%s%s\t%d\t%d\t%d\t%s\t%s\t%s\t\n",
			Green, feemath.Percent(p.Fee.Rate()), Reset,
			p.Fee, p.PrevFee, p.NextFee,
			feemath.Percent(p.ProtocolFee),
			bigString(p.Liquidity),
			shortAddr(p.Queue),
		)
	}
	w.Flush()
}

func watchLadder(safeState *SafeState, reader *bufio.Reader) {
	ps, token, ok := readPairAndToken(safeState.Get(), reader)
	if !ok {
		return
	}

	fmt.Println(Green + "Starting Live Watch... (Press 'Enter' to stop)" + Reset)
	time.Sleep(1 * time.Second)

	stopCh := make(chan struct{})
	go func() {
		reader.ReadString('\n')
		close(stopCh)
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var lastSequence uint64
	first := true
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			state := safeState.Get()
			if state == nil || (!first && state.Sequence == lastSequence) {
				continue
			}
			first = false
			lastSequence = state.Sequence

			fmt.Print("\033[H\033[2J")
			fmt.Printf(Bold+"\n--- LIVE MONITOR (Sequence: %d) ---\n"+Reset, state.Sequence)
			fmt.Println(Gray + "Press ENTER to return to menu." + Reset)

			current, ok := state.Pairs[ps.Meta.Address]
			if !ok {
				fmt.Println(Red + "[NOT FOUND] The pair is no longer in the state." + Reset)
				continue
			}
			printLadder(current.Books[token])
		}
	}
}

func quoteFee(state *engine.State, reader *bufio.Reader) {
	ps, token, ok := readPairAndToken(state, reader)
	if !ok {
		return
	}
	view := ps.Books[token]

	fmt.Print(Bold + "Enter Fee Tier (e.g. 0.3% or 0.003): " + Reset)
	fee, err := feemath.ParseFeeKey(readLine(reader))
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	var pool *feepool.FeePool
	for i := range view.Pools {
		if view.Pools[i].Fee == fee {
			pool = &view.Pools[i]
			break
		}
	}
	if pool == nil {
		fmt.Println(Red + "[NOT FOUND] No pool at that fee tier." + Reset)
		return
	}

	fmt.Print(Bold + "Enter Amount (base units): " + Reset)
	amountDec, err := decimal.NewFromString(readLine(reader))
	if err != nil || amountDec.IsNegative() || !amountDec.Equal(amountDec.Truncate(0)) {
		fmt.Println(Red + "Invalid amount format." + Reset)
		return
	}
	amount, overflow := uint256.FromBig(amountDec.BigInt())
	if overflow {
		fmt.Println(Red + "Amount overflows 256 bits." + Reset)
		return
	}

	total, err := feemath.ComputeFee(amount, pool.Fee.Rate())
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}
	lp, protocol, err := feemath.SplitFee(total, pool.ProtocolFee)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header("QUOTE")
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Tier:", Reset, feemath.Percent(pool.Fee.Rate()))
	fmt.Printf(" %s%-10s%s %s\n", Gray, "Amount:", Reset, amount.Dec())
	fmt.Printf(" %s%-10s%s %s%s%s\n", Gray, "Fee:", Reset, Bold, total.Dec(), Reset)
	fmt.Printf(" %s%-10s%s %s\n", Gray, "LP:", Reset, lp.Dec())
	fmt.Printf(" %s%-10s%s %s (%s)\n", Gray, "Protocol:", Reset, protocol.Dec(), feemath.Percent(pool.ProtocolFee))
}

func printHints(state *engine.State, reader *bufio.Reader) {
	ps, token, ok := readPairAndToken(state, reader)
	if !ok {
		return
	}

	fmt.Print(Bold + "Enter New Fee Tier (e.g. 0.3% or 0.003): " + Reset)
	fee, err := feemath.ParseFeeKey(readLine(reader))
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	prev, next, err := indexer.NewIndexableFeePools(ps.Books[token]).Hints(fee)
	if err != nil {
		fmt.Printf(Red+"[ERROR] %v%s\n", err, Reset)
		return
	}

	header("INSERT HINTS")
	fmt.Printf(" %s%-10s%s %d (%s)\n", Gray, "Fee:", Reset, fee, feemath.Percent(fee.Rate()))
	fmt.Printf(" %s%-10s%s %d\n", Gray, "PrevHint:", Reset, prev)
	fmt.Printf(" %s%-10s%s %d\n", Gray, "NextHint:", Reset, next)
}

// --- HELPERS ---

func readLine(reader *bufio.Reader) string {
	input, _ := reader.ReadString('\n')
	return strings.TrimSpace(input)
}

func readAddress(reader *bufio.Reader) (common.Address, bool) {
	input := readLine(reader)
	if !common.IsHexAddress(input) {
		fmt.Println(Red + "[ERROR] Invalid address." + Reset)
		return common.Address{}, false
	}
	return common.HexToAddress(input), true
}

func readPairAndToken(state *engine.State, reader *bufio.Reader) (engine.PairState, common.Address, bool) {
	if state == nil {
		return engine.PairState{}, common.Address{}, false
	}
	fmt.Print("\n" + Bold + "Enter Pair Address: " + Reset)
	addr, ok := readAddress(reader)
	if !ok {
		return engine.PairState{}, common.Address{}, false
	}
	ps, ok := state.Pairs[addr]
	if !ok {
		fmt.Println(Red + "[NOT FOUND] Pair address not found in state." + Reset)
		return engine.PairState{}, common.Address{}, false
	}

	fmt.Printf(Bold+"Enter Token Address %s(0 = %s, 1 = %s)%s: "+Reset, Gray, shortAddr(ps.Meta.Token0), shortAddr(ps.Meta.Token1), Reset)
	switch input := readLine(reader); input {
	case "0":
		return ps, ps.Meta.Token0, true
	case "1":
		return ps, ps.Meta.Token1, true
	default:
		if !common.IsHexAddress(input) {
			fmt.Println(Red + "[ERROR] Invalid address." + Reset)
			return engine.PairState{}, common.Address{}, false
		}
		token := common.HexToAddress(input)
		if _, ok := ps.Books[token]; !ok {
			fmt.Println(Red + "[NOT FOUND] Token is not part of the pair." + Reset)
			return engine.PairState{}, common.Address{}, false
		}
		return ps, token, true
	}
}

func shortAddr(addr common.Address) string {
	hex := addr.Hex()
	return hex[:8] + ".." + hex[len(hex)-4:]
}

func feeLabel(fee feepool.FeeKey) string {
	if fee == feepool.NoFee {
		return "-"
	}
	return feemath.Percent(fee.Rate())
}

func bigString(b *big.Int) string {
	if b == nil {
		return "0"
	}
	return b.String()
}

func exitConsole() {
	fmt.Println(Yellow + "Exiting..." + Reset)
	os.Exit(0)
}
