package blockchain

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/OdyseeTeam/pow-blocks/blockchain/digest"
	"github.com/OdyseeTeam/pow-blocks/blockchain/model"

	"github.com/cockroachdb/errors"
)

func newTestChain(t *testing.T, difficulty int) *Chain {
	t.Helper()
	c, err := New(Config{Difficulty: difficulty, GenesisTimestamp: testTimestamp})
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func appendN(t *testing.T, c *Chain, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		idx := c.Latest().Index + 1
		err := c.Append(NewBlock(idx, testTimestamp+int64(idx), transfer("Alice", "Bob", int(idx)), ""))
		if err != nil {
			t.Fatal(err)
		}
	}
}

// sampleChain is genesis plus Alice->Bob 100 and Bob->Charlie 50 at difficulty 2
func sampleChain(t *testing.T) *Chain {
	t.Helper()
	c := newTestChain(t, 2)
	if err := c.Append(NewBlock(1, testTimestamp+1, transfer("Alice", "Bob", 100), "")); err != nil {
		t.Fatal(err)
	}
	if err := c.Append(NewBlock(2, testTimestamp+2, transfer("Bob", "Charlie", 50), "")); err != nil {
		t.Fatal(err)
	}
	return c
}

func TestNewChainHasGenesis(t *testing.T) {
	c := newTestChain(t, 2)
	if c.Len() != 1 {
		t.Fatalf("expected 1 block, got %d", c.Len())
	}

	g := c.Latest()
	if g.Index != 0 || g.PreviousHash != GenesisPreviousHash || g.Nonce != 0 {
		t.Errorf("unexpected genesis: %+v", g)
	}
	if g.Data.(map[string]interface{})["message"] != GenesisMessage {
		t.Errorf("unexpected genesis payload: %v", g.Data)
	}
	if g.Hash != g.ComputeHash() {
		t.Error("genesis hash does not match its fields")
	}
}

func TestNewChainRejectsBadConfig(t *testing.T) {
	if _, err := New(Config{Difficulty: -1}); !errors.Is(err, ErrInvalidDifficulty) {
		t.Errorf("expected ErrInvalidDifficulty, got %v", err)
	}
	if _, err := New(Config{Difficulty: digest.HexLen + 1}); !errors.Is(err, ErrInvalidDifficulty) {
		t.Errorf("expected ErrInvalidDifficulty, got %v", err)
	}
	if _, err := New(Config{Algorithm: digest.Algorithm(99)}); !errors.Is(err, digest.ErrUnknownAlgorithm) {
		t.Errorf("expected ErrUnknownAlgorithm, got %v", err)
	}
}

func TestAppendLinksToTip(t *testing.T) {
	c := newTestChain(t, 2)
	tip := c.Latest()

	b := NewBlock(1, testTimestamp+1, transfer("Alice", "Bob", 100), "")
	if err := c.Append(b); err != nil {
		t.Fatal(err)
	}

	if c.Latest() != b {
		t.Error("latest is not the appended block")
	}
	if b.PreviousHash != tip.Hash {
		t.Errorf("expected previous hash %s, got %s", tip.Hash, b.PreviousHash)
	}
	if !strings.HasPrefix(b.Hash, "00") {
		t.Errorf("expected hash to start with 00, got %s", b.Hash)
	}
	if b.Hash != b.ComputeHash() {
		t.Error("appended block hash does not match its fields")
	}
}

func TestFreshChainIsValid(t *testing.T) {
	for n := 0; n <= 5; n++ {
		c := newTestChain(t, 1)
		appendN(t, c, n)
		if v := c.Validate(); !v.Valid() {
			t.Errorf("chain of %d appended blocks reported %s", n, v)
		}
	}
}

func TestConcreteScenario(t *testing.T) {
	c := sampleChain(t)

	b1, _ := c.Block(1)
	if !strings.HasPrefix(b1.Hash, "00") {
		t.Errorf("block 1 hash should start with 00, got %s", b1.Hash)
	}
	b2, _ := c.Block(2)
	if b2.PreviousHash != b1.Hash {
		t.Error("block 2 does not link to block 1")
	}
	if !c.IsValid() {
		t.Fatalf("expected valid chain, got %s", c.Validate())
	}

	b2.Data.(map[string]interface{})["amount"] = 5000

	v := c.Validate()
	if v.Valid() {
		t.Fatal("tampered chain reported valid")
	}
	if v != (Verdict{Index: 2, Reason: HashMismatch}) {
		t.Errorf("expected hash mismatch at block 2, got %s", v)
	}
}

func TestTamperedDataInMiddle(t *testing.T) {
	c := newTestChain(t, 1)
	appendN(t, c, 4)

	b, _ := c.Block(2)
	b.Data = transfer("Mallory", "Bob", 1)

	if v := c.Validate(); v != (Verdict{Index: 2, Reason: HashMismatch}) {
		t.Errorf("expected hash mismatch at block 2, got %s", v)
	}
}

func TestTamperedDataWithRecomputedHash(t *testing.T) {
	c := sampleChain(t)
	appendN(t, c, 1)

	b, _ := c.Block(2)
	b.Data.(map[string]interface{})["amount"] = 5000
	b.Hash = b.ComputeHash()

	// the fresh hash almost surely lacks the zeros; if it has them, block 3 no longer links
	v := c.Validate()
	if v != (Verdict{Index: 2, Reason: DifficultyUnmet}) && v != (Verdict{Index: 3, Reason: BrokenLink}) {
		t.Errorf("expected difficulty unmet at 2 or broken link at 3, got %s", v)
	}
}

func TestOverwrittenPreviousHash(t *testing.T) {
	c := sampleChain(t)
	fake := digest.SHA256.SumHex([]byte("not the real parent"))

	b, _ := c.Block(1)
	b.PreviousHash = fake
	if v := c.Validate(); v != (Verdict{Index: 1, Reason: HashMismatch}) {
		t.Errorf("stale hash: expected hash mismatch at 1, got %s", v)
	}

	b.Hash = b.ComputeHash()
	if v := c.Validate(); v != (Verdict{Index: 1, Reason: BrokenLink}) {
		t.Errorf("recomputed hash: expected broken link at 1, got %s", v)
	}
}

func TestTamperedNonce(t *testing.T) {
	c := sampleChain(t)
	b, _ := c.Block(1)
	b.Nonce++
	if v := c.Validate(); v != (Verdict{Index: 1, Reason: HashMismatch}) {
		t.Errorf("expected hash mismatch at 1, got %s", v)
	}
}

func TestTamperedGenesis(t *testing.T) {
	c := sampleChain(t)
	g, _ := c.Block(0)
	g.Timestamp++
	if v := c.Validate(); v != (Verdict{Index: 0, Reason: HashMismatch}) {
		t.Errorf("expected hash mismatch at 0, got %s", v)
	}
}

func TestDifficultyUnmet(t *testing.T) {
	easy := newTestChain(t, 0)
	appendN(t, easy, 2)

	blocks := make([]*Block, easy.Len())
	for i := range blocks {
		blocks[i], _ = easy.Block(i)
	}

	hard, err := Restore(Config{Difficulty: digest.HexLen}, blocks)
	if err != nil {
		t.Fatal(err)
	}
	if v := hard.Validate(); v != (Verdict{Index: 1, Reason: DifficultyUnmet}) {
		t.Errorf("expected difficulty unmet at 1, got %s", v)
	}
}

func TestRestoreWithWrongAlgorithm(t *testing.T) {
	c := sampleChain(t)
	blocks := make([]*Block, c.Len())
	for i := range blocks {
		blocks[i], _ = c.Block(i)
	}

	restored, err := Restore(Config{Difficulty: 2, Algorithm: digest.Blake3}, blocks)
	if err != nil {
		t.Fatal(err)
	}
	if v := restored.Validate(); v != (Verdict{Index: 0, Reason: HashMismatch}) {
		t.Errorf("expected hash mismatch at 0, got %s", v)
	}
}

func TestRestoreLeavesInputAlone(t *testing.T) {
	c := sampleChain(t)
	blocks := make([]*Block, c.Len())
	for i := range blocks {
		blocks[i], _ = c.Block(i)
	}

	restored, err := Restore(Config{Difficulty: 2, Algorithm: digest.Blake3}, blocks)
	if err != nil {
		t.Fatal(err)
	}
	for i, b := range blocks {
		if b.Algorithm() != digest.SHA256 {
			t.Errorf("block %d switched to %s", i, b.Algorithm())
		}
		if r, _ := restored.Block(i); r == b {
			t.Errorf("block %d is shared between chains", i)
		}
	}
	if v := c.Validate(); !v.Valid() {
		t.Errorf("original chain reported %s after restore", v)
	}
}

func TestRestoreRejectsEmpty(t *testing.T) {
	if _, err := Restore(DefaultConfig(), nil); !errors.Is(err, ErrEmptyChain) {
		t.Errorf("expected ErrEmptyChain, got %v", err)
	}
	if _, err := Restore(DefaultConfig(), []*Block{nil}); err == nil {
		t.Error("expected error for nil block")
	}
}

func TestEveryAlgorithm(t *testing.T) {
	for _, a := range []digest.Algorithm{digest.SHA256, digest.DoubleSHA256, digest.Blake2b256, digest.Blake3} {
		c, err := New(Config{Difficulty: 1, Algorithm: a, GenesisTimestamp: testTimestamp})
		if err != nil {
			t.Fatal(err)
		}
		appendN(t, c, 2)
		if v := c.Validate(); !v.Valid() {
			t.Errorf("%s: expected valid chain, got %s", a, v)
		}
		if b := c.Latest(); b.Algorithm() != a {
			t.Errorf("%s: appended block hashes with %s", a, b.Algorithm())
		}
	}
}

func TestAppendAborted(t *testing.T) {
	c, err := New(Config{Difficulty: digest.HexLen, MaxIterations: 50})
	if err != nil {
		t.Fatal(err)
	}

	err = c.Append(NewBlock(1, testTimestamp, "never mined", ""))
	if !errors.Is(err, ErrMiningAborted) {
		t.Errorf("expected ErrMiningAborted, got %v", err)
	}
	if c.Len() != 1 {
		t.Errorf("aborted block was stored: length %d", c.Len())
	}
	if err := c.Append(nil); err == nil {
		t.Error("expected error appending nil")
	}
}

func TestAppendTimeoutStartsAfterWaiting(t *testing.T) {
	c, err := New(Config{Difficulty: 1, MineTimeout: 100 * time.Millisecond, GenesisTimestamp: testTimestamp})
	if err != nil {
		t.Fatal(err)
	}

	// another append holding the chain for longer than the timeout
	c.mu.Lock()
	done := make(chan error, 1)
	go func() {
		done <- c.Append(NewBlock(1, testTimestamp+1, "waited", ""))
	}()
	time.Sleep(200 * time.Millisecond)
	c.mu.Unlock()

	if err := <-done; err != nil {
		t.Fatalf("append after waiting for the chain failed: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("expected 2 blocks, got %d", c.Len())
	}
}

func TestAppendRejectsUnencodableData(t *testing.T) {
	c := newTestChain(t, 1)
	for _, data := range []interface{}{math.NaN(), make(chan int), func() {}} {
		err := c.Append(NewBlock(1, testTimestamp+1, data, ""))
		if !errors.Is(err, ErrUnencodableData) {
			t.Errorf("%T: expected ErrUnencodableData, got %v", data, err)
		}
	}
	if c.Len() != 1 {
		t.Errorf("unencodable block was stored: length %d", c.Len())
	}
}

func TestConcurrentAppend(t *testing.T) {
	c, err := New(Config{Difficulty: 1, Workers: 2, GenesisTimestamp: testTimestamp})
	if err != nil {
		t.Fatal(err)
	}

	wg := sync.WaitGroup{}
	for i := 1; i <= 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := c.Append(NewBlock(uint64(i), testTimestamp, fmt.Sprintf("payload %d", i), "")); err != nil {
				t.Error(err)
			}
			c.Validate()
		}(i)
	}
	wg.Wait()

	if c.Len() != 9 {
		t.Errorf("expected 9 blocks, got %d", c.Len())
	}
	if v := c.Validate(); !v.Valid() {
		t.Errorf("expected valid chain, got %s", v)
	}
}

func TestOnBlock(t *testing.T) {
	c := newTestChain(t, 1)

	var seen []model.Block
	c.OnBlock(func(b model.Block) {
		seen = append(seen, b)
	})
	appendN(t, c, 3)

	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	for i, v := range seen {
		b, _ := c.Block(i + 1)
		if v.Hash != b.Hash || v.Index != b.Index {
			t.Errorf("notification %d does not match block: %+v", i, v)
		}
	}
}

func TestBlocksEnumeration(t *testing.T) {
	c := sampleChain(t)

	first := c.Blocks()
	second := c.Blocks()
	if len(first) != 3 || len(second) != 3 {
		t.Fatalf("expected 3 views each time, got %d and %d", len(first), len(second))
	}
	for i := range first {
		if first[i].Hash != second[i].Hash || first[i].Index != uint64(i) {
			t.Errorf("view %d differs between enumerations", i)
		}
	}
	if first[1].PreviousHash != first[0].Hash {
		t.Error("views do not show the link")
	}

	first[2].Data.(map[string]interface{})["amount"] = 5000
	if !c.IsValid() {
		t.Error("changing a view invalidated the chain")
	}

	if _, ok := c.Block(3); ok {
		t.Error("expected no block at 3")
	}
	if _, ok := c.Block(-1); ok {
		t.Error("expected no block at -1")
	}
}

func TestVerdictErr(t *testing.T) {
	if err := (Verdict{}).Err(); err != nil {
		t.Errorf("valid verdict produced error %v", err)
	}

	err := Verdict{Index: 4, Reason: BrokenLink}.Err()
	var invalid *InvalidBlockError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidBlockError, got %v", err)
	}
	if invalid.Index != 4 || invalid.Reason != BrokenLink {
		t.Errorf("unexpected error contents: %+v", invalid)
	}
	if got, want := invalid.Error(), "invalid chain: block 4: broken link"; got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}
