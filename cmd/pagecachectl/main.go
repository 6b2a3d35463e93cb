// Command pagecachectl is an interactive shell over a buffer pool
// manager, for manually driving fetch/unpin/flush/new/delete against a
// real page file — useful for poking at eviction behavior by hand.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"

	"github.com/chzyer/readline"

	"github.com/tuannm99/pagecache/internal/bufferpool"
	"github.com/tuannm99/pagecache/internal/config"
	"github.com/tuannm99/pagecache/internal/diskmgr"
	"github.com/tuannm99/pagecache/internal/pagecore"
	"github.com/tuannm99/pagecache/internal/replacer"
	"github.com/tuannm99/pagecache/internal/walref"
)

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "pagecache.yaml", "path to pagecache yaml config")
	flag.Parse()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	disk, err := diskmgr.NewFileManager(cfg.Storage.DataFile)
	if err != nil {
		log.Fatalf("open page file: %v", err)
	}
	defer func() { _ = disk.Close() }()

	logMgr, err := walref.Open(cfg.Storage.WALDir)
	if err != nil {
		log.Fatalf("open wal dir: %v", err)
	}
	defer func() { _ = logMgr.Close() }()

	var repl replacer.Replacer
	if cfg.Pool.Replacer == "clock" {
		repl = replacer.NewClockReplacer(cfg.Pool.Size)
	} else {
		repl = replacer.NewLRUReplacer(cfg.Pool.Size)
	}

	bp := bufferpool.New(cfg.Pool.Size, disk, repl, logMgr)

	rl, err := readline.NewEx(&readline.Config{
		Prompt:      "pagecache> ",
		HistoryFile: "/tmp/pagecachectl_history",
	})
	if err != nil {
		log.Fatalf("readline: %v", err)
	}
	defer func() { _ = rl.Close() }()

	fmt.Printf("pagecachectl: pool size %d, replacer %q, data file %s\n",
		cfg.Pool.Size, cfg.Pool.Replacer, cfg.Storage.DataFile)

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == io.EOF || err == readline.ErrInterrupt {
				return
			}
			log.Printf("readline: %v", err)
			continue
		}
		dispatch(bp, strings.Fields(line))
	}
}

func dispatch(bp *bufferpool.BufferPoolManager, args []string) {
	if len(args) == 0 {
		return
	}

	switch args[0] {
	case "new":
		frame, err := bp.NewPage()
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if frame == nil {
			fmt.Println("no free frame")
			return
		}
		fmt.Println("allocated page", frame.PageID)

	case "fetch":
		id, ok := parsePageID(args)
		if !ok {
			return
		}
		frame, err := bp.FetchPage(id)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		if frame == nil {
			fmt.Println("no free frame")
			return
		}
		fmt.Printf("page %d pinCount=%d dirty=%v first bytes=%x\n",
			frame.PageID, frame.PinCount, frame.IsDirty, frame.Page.Data()[:8])

	case "unpin":
		id, ok := parsePageID(args)
		if !ok {
			return
		}
		dirty := len(args) > 2 && args[2] == "dirty"
		fmt.Println("ok:", bp.UnpinPage(id, dirty))

	case "flush":
		id, ok := parsePageID(args)
		if !ok {
			return
		}
		found, err := bp.FlushPage(id)
		if err != nil {
			fmt.Println("error:", err)
			return
		}
		fmt.Println("found:", found)

	case "delete":
		id, ok := parsePageID(args)
		if !ok {
			return
		}
		fmt.Println("ok:", bp.DeletePage(id))

	case "flushall":
		bp.FlushAll()
		fmt.Println("flushed all dirty pages")

	case "stats":
		free, evictable, pinned := bp.Stats()
		fmt.Printf("pool size=%d free=%d evictable=%d pinned=%d\n",
			bp.PoolSize(), free, evictable, pinned)

	default:
		fmt.Println("commands: new, fetch <id>, unpin <id> [dirty], flush <id>, delete <id>, flushall, stats")
	}
}

func parsePageID(args []string) (pagecore.PageID, bool) {
	if len(args) < 2 {
		fmt.Println("usage:", args[0], "<page id>")
		return 0, false
	}
	n, err := strconv.Atoi(args[1])
	if err != nil {
		fmt.Println("invalid page id:", args[1])
		return 0, false
	}
	return pagecore.PageID(n), true
}
