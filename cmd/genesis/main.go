package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ethereum/go-ethereum/log"

	"github.com/minx-network/distribution/config"
	"github.com/minx-network/distribution/internal/custody"
	"github.com/minx-network/distribution/internal/service"
	"github.com/minx-network/distribution/internal/statedb"
)

// genesis writes the initial token state: the configured supplies minted to
// the owner, committed, and the root recorded next to the database.
func main() {
	configPath := flag.String("config", "config/config.json", "Path to config.json")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Crit("Failed to load config", "err", err)
	}
	if cfg.StorageDir == "" {
		log.Crit("Genesis needs a storage_dir")
	}

	db, err := statedb.Open(cfg.StorageDir)
	if err != nil {
		log.Crit("Failed to open state database", "err", err)
	}
	defer db.Close()

	st, err := custody.NewState(db)
	if err != nil {
		log.Crit("Failed to open custody state", "err", err)
	}
	token, swapToken := service.Tokens(st, cfg)
	if err := service.Genesis(token, swapToken, cfg, log.Root()); err != nil {
		log.Crit("Genesis failed", "err", err)
	}

	root, err := st.Commit()
	if err != nil {
		log.Crit("Commit failed", "err", err)
	}
	fmt.Printf("Commit Root: %v\n", root)

	rootFile := filepath.Join(cfg.StorageDir, "genesis_root.txt")
	if err := os.WriteFile(rootFile, []byte(root.Hex()), 0o644); err != nil {
		log.Crit("Failed to write root file", "err", err)
	}
}
