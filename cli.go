package main

import (
	"context"
	"fmt"
	"os"

	"strife/server/internal/store"
)

// RunCLI handles subcommand execution. Returns true if a subcommand was handled.
func RunCLI(args []string, dbPath string) bool {
	if len(args) == 0 {
		return false
	}

	switch args[0] {
	case "version":
		fmt.Printf("strife server %s\n", Version)
		return true
	case "status":
		return cliStatus(dbPath)
	case "users":
		return cliUsers(args[1:], dbPath)
	case "groups":
		return cliGroups(args[1:], dbPath)
	case "backup":
		return cliBackup(args[1:], dbPath)
	default:
		return false
	}
}

func cliOpen(dbPath string) *store.Store {
	st, err := store.Open(dbPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error opening database: %v\n", err)
		os.Exit(1)
	}
	return st
}

func cliStatus(dbPath string) bool {
	st := cliOpen(dbPath)
	defer st.Close()
	ctx := context.Background()

	users, _ := st.UserCount(ctx)
	groups, _ := st.GroupCount(ctx)
	fmt.Printf("Database: %s\n", dbPath)
	fmt.Printf("Users: %d\n", users)
	fmt.Printf("Chats: %d\n", groups)
	fmt.Printf("Version: %s\n", Version)
	return true
}

func cliUsers(args []string, dbPath string) bool {
	if len(args) > 0 && args[0] != "list" {
		fmt.Fprintf(os.Stderr, "Usage: server users [list]\n")
		os.Exit(1)
	}
	st := cliOpen(dbPath)
	defer st.Close()

	users, err := st.ListUsers(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(users) == 0 {
		fmt.Println("No users found.")
		return true
	}
	for _, u := range users {
		fmt.Printf("  %s\n", u)
	}
	return true
}

func cliGroups(args []string, dbPath string) bool {
	if len(args) > 0 && args[0] != "list" {
		fmt.Fprintf(os.Stderr, "Usage: server groups [list]\n")
		os.Exit(1)
	}
	st := cliOpen(dbPath)
	defer st.Close()

	groups, err := st.ListGroups(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if len(groups) == 0 {
		fmt.Println("No chats found.")
		return true
	}
	for _, g := range groups {
		fmt.Printf("  [%d] %s\n", g.ID, g.Name)
	}
	return true
}

func cliBackup(args []string, dbPath string) bool {
	outPath := "strife-backup.db"
	if len(args) > 0 {
		outPath = args[0]
	}
	st := cliOpen(dbPath)
	defer st.Close()

	if err := st.Backup(context.Background(), outPath); err != nil {
		fmt.Fprintf(os.Stderr, "backup failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Database backed up to %s\n", outPath)
	return true
}
