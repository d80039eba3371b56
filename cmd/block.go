package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/luxfi/dbtools/pkg/application"
	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/reader"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/spf13/cobra"
)

const notFound = "not found"

// NewLastBlockCmd creates the lastblock command
func NewLastBlockCmd(app *application.App) *cobra.Command {
	var txs bool

	cmd := &cobra.Command{
		Use:   "lastblock [db-path]",
		Short: "Display the last block of the block store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(app, args[0], func(r *reader.Reader) error {
				b, err := r.LastBlock()
				if errors.Is(err, reader.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), notFound)
					return nil
				}
				if err != nil {
					return err
				}
				return printBlock(cmd.OutOrStdout(), b, txs)
			})
		},
	}

	cmd.Flags().BoolVar(&txs, "txs", false, "Also list the block's transactions")

	return cmd
}

// NewBlockCmd creates the block command
func NewBlockCmd(app *application.App) *cobra.Command {
	var (
		height uint64
		hash   string
		txs    bool
	)

	cmd := &cobra.Command{
		Use:   "block [db-path]",
		Short: "Display a block by height or hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withReader(app, args[0], func(r *reader.Reader) error {
				var (
					b   *block.Block
					err error
				)
				if cmd.Flags().Changed("hash") {
					raw, herr := block.HexToBytes(hash)
					if herr != nil {
						return fmt.Errorf("invalid block hash %q: %w", hash, herr)
					}
					b, err = r.BlockByHash(raw)
				} else {
					b, err = r.BlockByHeight(height)
				}
				if errors.Is(err, reader.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), notFound)
					return nil
				}
				if err != nil {
					return err
				}
				return printBlock(cmd.OutOrStdout(), b, txs)
			})
		},
	}

	cmd.Flags().Uint64Var(&height, "height", 0, "Block height")
	cmd.Flags().StringVar(&hash, "hash", "", "Block hash in hex")
	cmd.Flags().BoolVar(&txs, "txs", false, "Also list the block's transactions")
	cmd.MarkFlagsMutuallyExclusive("height", "hash")
	cmd.MarkFlagsOneRequired("height", "hash")

	return cmd
}

// NewTxResultCmd creates the txresult command
func NewTxResultCmd(app *application.App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "txresult [db-path] [tx-hash]",
		Short: "Display the execution result of a transaction",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			txHash, err := block.HexToBytes(args[1])
			if err != nil {
				return fmt.Errorf("invalid transaction hash %q: %w", args[1], err)
			}
			return withReader(app, args[0], func(r *reader.Reader) error {
				result, err := r.TransactionResultByHash(txHash)
				if errors.Is(err, reader.ErrNotFound) {
					fmt.Fprintln(cmd.OutOrStdout(), notFound)
					return nil
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), result.Raw)
			})
		},
	}
	return cmd
}

// withReader opens the block store at path for the duration of fn.
func withReader(app *application.App, path string, fn func(r *reader.Reader) error) error {
	r := reader.New(storeOptions(app))
	if err := r.Open(path); err != nil {
		return err
	}
	defer r.Close()
	return fn(r)
}

func printBlock(w io.Writer, b *block.Block, withTxs bool) error {
	fmt.Fprintf(w, "version: %s\n", b.Version)
	fmt.Fprintf(w, "height: %d\n", b.Height)
	fmt.Fprintf(w, "hash: %s\n", b.Hash)
	fmt.Fprintf(w, "prevHash: %s\n", b.PrevHash)
	fmt.Fprintf(w, "timestamp: %d\n", b.Timestamp)
	if b.StateRoot != nil {
		fmt.Fprintf(w, "stateRoot: %s\n", b.StateRoot)
	} else {
		fmt.Fprintln(w, "stateRoot: None")
	}
	fmt.Fprintf(w, "transactions: %d\n", len(b.Transactions()))

	if !withTxs {
		return nil
	}
	txs, err := b.DecodeTransactions()
	if err != nil {
		return fmt.Errorf("block %d (%s): %w", b.Height, hexutil.Bytes(b.Hash), err)
	}
	for _, tx := range txs {
		fmt.Fprintf(w, "  %s\n", tx)
	}
	return nil
}

func printJSON(w io.Writer, raw json.RawMessage) error {
	out, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(out))
	return nil
}
