// Package cli implements the pgbr command-line surface: a small table of
// named commands dispatched from os.Args, the same shape as the teacher's
// job-control CLI (internal/server/cli.go) — a Command{usage, description,
// execute} map and a TableWriter for aligned plain-text output.
package cli

import (
	"bufio"
	"context"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"pgbr/backupfile"
	"pgbr/blockmap"
	"pgbr/filter/blockhash"
	"pgbr/internal/config"
	"pgbr/internal/logging"
	"pgbr/internal/metrics"
	"pgbr/internal/worker"
)

// TableWriter renders aligned plain-text tables, the same minimal
// column-width-measuring renderer the teacher's CLI uses for its job list.
type TableWriter struct {
	headers []string
	rows    [][]string
	writer  *os.File
}

func NewTableWriter(writer *os.File) *TableWriter {
	return &TableWriter{writer: writer}
}

func (t *TableWriter) SetHeader(headers []string) { t.headers = headers }
func (t *TableWriter) Append(row []string)         { t.rows = append(t.rows, row) }

func (t *TableWriter) Render() {
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = len(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && len(cell) > widths[i] {
				widths[i] = len(cell)
			}
		}
	}

	printRow := func(cells []string) {
		fmt.Fprint(t.writer, "| ")
		for i := range t.headers {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			fmt.Fprintf(t.writer, "%-*s | ", widths[i], cell)
		}
		fmt.Fprintln(t.writer)
	}

	printRow(t.headers)
	sep := make([]string, len(t.headers))
	for i, w := range widths {
		dashes := make([]byte, w)
		for j := range dashes {
			dashes[j] = '-'
		}
		sep[i] = string(dashes)
	}
	printRow(sep)
	for _, row := range t.rows {
		printRow(row)
	}
}

// Command is one dispatchable CLI subcommand.
type Command struct {
	usage       string
	description string
	execute     func(args []string) error
}

func commands() map[string]Command {
	return map[string]Command{
		"backup": {
			usage:       "backup [src-file] [dst-file]",
			description: "Run the backup pipeline over a single file",
			execute:     cmdBackup,
		},
		"restore": {
			usage:       "restore [src-file] [dst-file] [expected-hash]",
			description: "Run the restore pipeline over a single backed-up file",
			execute:     cmdRestore,
		},
		"checksum": {
			usage:       "checksum [file] [block-size] [checksum-size]",
			description: "Print block checksums for a file",
			execute:     cmdChecksum,
		},
		"diff": {
			usage:       "diff [reference-file] [new-file] [block-size] [checksum-size]",
			description: "Build and print a block map of new-file against reference-file",
			execute:     cmdDiff,
		},
		"serve-metrics": {
			usage:       "serve-metrics",
			description: "Serve Prometheus metrics on PGBR_METRICS_ADDR until interrupted",
			execute:     cmdServeMetrics,
		},
		"worker": {
			usage:       "worker",
			description: "Pull jobs from the Redis queue and drive them through the pipeline until interrupted",
			execute:     cmdWorker,
		},
		"help": {
			usage:       "help",
			description: "Show this help message",
			execute:     func(_ []string) error { printUsage(); return nil },
		},
	}
}

// Run dispatches os.Args[1:] to the matching command and returns its error.
func Run(args []string) error {
	if len(args) < 1 {
		printUsage()
		return nil
	}
	cmds := commands()
	cmd, ok := cmds[args[0]]
	if !ok {
		printUsage()
		return fmt.Errorf("unknown command: %s", args[0])
	}
	return cmd.execute(args[1:])
}

func printUsage() {
	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"Command", "Description"})
	for _, cmd := range commands() {
		table.Append([]string{cmd.usage, cmd.description})
	}
	table.Render()
}

func cmdBackup(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("usage: backup [src-file] [dst-file]")
	}
	src, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer dst.Close()

	start := time.Now()
	manifest, ferr := backupfile.Backup(bufio.NewReader(src), dst, backupfile.Options{
		BlockIncremental: true,
		BlockSize:        1024 * 1024,
		ChecksumSize:     6,
		Compress:         backupfile.CompressZstd,
		Chunked:          true,
	})
	if ferr != nil {
		metrics.RecordOperation("backup", "error", time.Since(start).Seconds())
		return ferr
	}
	metrics.RecordOperation("backup", "success", time.Since(start).Seconds())
	fmt.Printf("integrity hash: %x\n", manifest.IntegrityHash)
	fmt.Printf("block checksums: %d bytes\n", len(manifest.BlockChecksums))
	return nil
}

func cmdRestore(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: restore [src-file] [dst-file] [expected-hash-hex]")
	}
	expectedHash, herr := hex.DecodeString(args[2])
	if herr != nil {
		return fmt.Errorf("expected-hash-hex: %w", herr)
	}
	src, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := os.Create(args[1])
	if err != nil {
		return err
	}
	defer dst.Close()

	start := time.Now()
	ferr := backupfile.Restore(bufio.NewReader(src), dst, backupfile.RestoreOptions{
		Compress:     backupfile.CompressZstd,
		Chunked:      true,
		ExpectedHash: expectedHash,
	})
	if ferr != nil {
		metrics.RecordOperation("restore", "error", time.Since(start).Seconds())
		return ferr
	}
	metrics.RecordOperation("restore", "success", time.Since(start).Seconds())
	fmt.Println("restore completed")
	return nil
}

func cmdChecksum(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: checksum [file] [block-size] [checksum-size]")
	}
	blockSize, err := strconv.Atoi(args[1])
	if err != nil {
		return err
	}
	checksumSize, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}

	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	filt, ferr := blockhash.NewBlockChecksum(blockSize, checksumSize)
	if ferr != nil {
		return ferr
	}

	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if perr := filt.ProcessIn(buf[:n]); perr != nil {
				return perr
			}
		}
		if rerr != nil {
			break
		}
	}

	flat, _ := filt.Result().Get(1)
	digests := blockmap.SplitDigests(flat.Bin(), checksumSize)
	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"block", "checksum"})
	for i, d := range digests {
		table.Append([]string{strconv.Itoa(i), fmt.Sprintf("%x", d)})
	}
	table.Render()
	return nil
}

func cmdDiff(args []string) error {
	if len(args) < 4 {
		return fmt.Errorf("usage: diff [reference-file] [new-file] [block-size] [checksum-size]")
	}
	blockSize, err := strconv.Atoi(args[2])
	if err != nil {
		return err
	}
	checksumSize, err := strconv.Atoi(args[3])
	if err != nil {
		return err
	}

	refDigests, err := fileDigests(args[0], blockSize, checksumSize)
	if err != nil {
		return err
	}
	newDigests, err := fileDigests(args[1], blockSize, checksumSize)
	if err != nil {
		return err
	}

	entries := blockmap.BuildMap([]blockmap.Reference{
		{Label: args[0], ChecksumSize: checksumSize, Digests: refDigests},
	}, newDigests)

	table := NewTableWriter(os.Stdout)
	table.SetHeader([]string{"reference", "block-index", "length"})
	for _, e := range entries {
		table.Append([]string{e.Reference, strconv.Itoa(e.BlockIndex), strconv.Itoa(e.Length)})
	}
	table.Render()
	return nil
}

func fileDigests(path string, blockSize, checksumSize int) ([][]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	filt, ferr := blockhash.NewBlockChecksum(blockSize, checksumSize)
	if ferr != nil {
		return nil, ferr
	}
	buf := make([]byte, 64*1024)
	for {
		n, rerr := f.Read(buf)
		if n > 0 {
			if perr := filt.ProcessIn(buf[:n]); perr != nil {
				return nil, perr
			}
		}
		if rerr != nil {
			break
		}
	}
	flat, _ := filt.Result().Get(1)
	return blockmap.SplitDigests(flat.Bin(), checksumSize), nil
}

func cmdWorker(_ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.InContainer)
	if err != nil {
		return err
	}
	defer logging.Sync(logger)

	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer client.Close()

	pool := worker.NewPool(client, cfg.RepoPath, cfg.WorkerCount, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("worker pool starting", zap.Int("worker_count", cfg.WorkerCount), zap.String("repo_path", cfg.RepoPath))
	if err := pool.Run(ctx); err != nil {
		return err
	}
	return nil
}

func cmdServeMetrics(_ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	srv := metrics.NewServer(cfg.MetricsAddr)
	if err := srv.Start(); err != nil {
		return err
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	<-ctx.Done()
	return nil
}
