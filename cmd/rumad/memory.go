package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/Pradhumn115/ruma-core/internal/storage"

	"github.com/spf13/cobra"
)

var memoryCmd = &cobra.Command{
	Use:   "memory",
	Short: "Inspect and edit stored memories on a running rumad serve",
}

var (
	memUserID     string
	memContent    string
	memType       string
	memImportance float64
	memTier       string
	memLimit      int
	memForce      bool
)

var memoryStoreCmd = &cobra.Command{
	Use:   "store",
	Short: "Store a memory directly, bypassing the gating/dedup pipeline's normal entry point (the chat turn)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		var result map[string]string
		err = newControlClient(a).doJSON("POST", "/api/memory", map[string]any{
			"user_id":     memUserID,
			"content":     memContent,
			"memory_type": memType,
			"importance":  memImportance,
		}, &result)
		if err != nil {
			return err
		}
		fmt.Println(result["status"])
		return nil
	},
}

var memoryListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored memories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		path := fmt.Sprintf("/api/memory?user_id=%s&tier=%s&limit=%d", memUserID, memTier, memLimit)
		var memories []storage.Memory
		if err := newControlClient(a).doJSON("GET", path, nil, &memories); err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(memories)
	},
}

var memoryDeleteCmd = &cobra.Command{
	Use:   "delete [id]",
	Short: "Delete a memory by ID",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		var result map[string]int64
		if err := newControlClient(a).doJSON("DELETE", "/api/memory/"+args[0], nil, &result); err != nil {
			return err
		}
		fmt.Printf("deleted: %d\n", result["deleted"])
		return nil
	},
}

var memoryOptimizeCmd = &cobra.Command{
	Use:   "optimize",
	Short: "Run tiering/dedup/compression maintenance for a user now, without waiting for the weekly scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := bootstrap()
		if err != nil {
			return err
		}
		defer a.Close()

		var report map[string]any
		err = newControlClient(a).doJSON("POST", "/api/memory/optimize", map[string]any{
			"user_id": memUserID,
			"force":   memForce,
		}, &report)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	},
}

func init() {
	memoryCmd.PersistentFlags().StringVar(&memUserID, "user", "default", "user id")

	memoryStoreCmd.Flags().StringVar(&memContent, "content", "", "memory content")
	memoryStoreCmd.Flags().StringVar(&memType, "type", "fact", "memory type")
	memoryStoreCmd.Flags().Float64Var(&memImportance, "importance", 0.5, "importance score, 0-1")

	memoryListCmd.Flags().StringVar(&memTier, "tier", "", "filter by tier (hot/warm/cold)")
	memoryListCmd.Flags().IntVar(&memLimit, "limit", 50, "max rows")

	memoryOptimizeCmd.Flags().BoolVar(&memForce, "force", false, "passed to the optimizer; every pass runs whether or not it is set")

	memoryCmd.AddCommand(memoryStoreCmd, memoryListCmd, memoryDeleteCmd, memoryOptimizeCmd)
}
