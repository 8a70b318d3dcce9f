package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/OdyseeTeam/pow-blocks/blockchain"
	"github.com/OdyseeTeam/pow-blocks/blockchain/model"
	"github.com/OdyseeTeam/pow-blocks/config"
	"github.com/OdyseeTeam/pow-blocks/loader"
	"github.com/OdyseeTeam/pow-blocks/server"
	"github.com/OdyseeTeam/pow-blocks/storage"

	"github.com/cockroachdb/errors"
	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		logrus.Fatalf("%+v", err)
	}
	setupLogging(cfg.Log)

	switch cfg.Profile {
	case "cpu":
		defer profile.Start(profile.CPUProfile).Stop()
	case "mem":
		defer profile.Start(profile.MemProfile).Stop()
	}

	if cfg.Verify != "" {
		if !verify(cfg.Verify) {
			os.Exit(1)
		}
		return
	}

	err = demo(cfg)
	if err != nil {
		logrus.Fatalf("%+v", err)
	}
}

func setupLogging(cfg config.LogConfig) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if strings.EqualFold(cfg.Format, "json") {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

// demo builds the sample chain, shows that it validates, then tampers with it
func demo(cfg config.Config) error {
	chainConfig, err := cfg.Blockchain()
	if err != nil {
		return err
	}

	chain, err := blockchain.New(chainConfig)
	if err != nil {
		return err
	}

	db, err := storage.Open()
	if err != nil {
		return err
	}
	defer db.Close()

	index, err := storage.OpenIndex()
	if err != nil {
		return err
	}
	defer index.Close()

	err = storage.Track(chain, db, index)
	if err != nil {
		return err
	}

	transfers := []*model.Transfer{
		{Sender: "Alice", Receiver: "Bob", Amount: 100},
		{Sender: "Bob", Receiver: "Charlie", Amount: 50},
		{Sender: "Charlie", Receiver: "Alice", Amount: 25},
	}
	for i, t := range transfers {
		block := blockchain.NewBlock(uint64(i+1), time.Now().UnixNano()/int64(time.Millisecond), t, "")
		err = chain.Append(block)
		if err != nil {
			return err
		}
	}

	printChain(chain)
	if logrus.IsLevelEnabled(logrus.DebugLevel) {
		logrus.Debug(spew.Sdump(chain.Blocks()))
	}
	printVerdict(chain.Validate())

	if cfg.Export != "" {
		err = loader.SaveFile(cfg.Export, chain)
		if err != nil {
			return err
		}
	}

	fmt.Println("\ntampering with block 2: amount 50 -> 5000")
	block, _ := chain.Block(2)
	block.Data.(*model.Transfer).Amount = 5000
	printVerdict(chain.Validate())

	if cfg.Serve != "" {
		server.New(chain, db, index).Start(cfg.Serve)
		waitForSignal()
	}
	return nil
}

func verify(path string) bool {
	chain, verdict, err := loader.LoadFile(path)
	if err != nil {
		logrus.Errorf("%+v", err)
		return false
	}

	printChain(chain)
	printVerdict(verdict)
	if err := verdict.Err(); err != nil {
		logrus.Error(err)
		return false
	}
	return true
}

func printChain(chain *blockchain.Chain) {
	fmt.Printf("\n=== chain (difficulty %d, %s) ===\n", chain.Difficulty(), chain.Algorithm())
	for _, b := range chain.Blocks() {
		fmt.Printf("\nblock #%d\n", b.Index)
		fmt.Printf("  timestamp: %s\n", b.Time().Format(time.RFC3339Nano))
		fmt.Printf("  data:      %s\n", blockchain.CanonicalData(b.Data))
		fmt.Printf("  prev hash: %s\n", b.PreviousHash)
		fmt.Printf("  hash:      %s\n", b.Hash)
		fmt.Printf("  nonce:     %d\n", b.Nonce)
	}
}

func printVerdict(v blockchain.Verdict) {
	if v.Valid() {
		fmt.Println("\nchain is valid")
		return
	}
	fmt.Printf("\nchain is NOT valid: %s\n", v)
}

func waitForSignal() {
	interruptChan := make(chan os.Signal, 1)
	signal.Notify(interruptChan, os.Interrupt, syscall.SIGTERM)
	<-interruptChan
	logrus.Info("shutting down")
}
