package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	designservice "github.com/niczy/designtree/internal/services/design"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

var (
	serverAddr string
	designName string
	projectID  string
)

var exportCmd = &cobra.Command{
	Use:   "export <project-id>",
	Short: "Export the current selection of a project and cache the design",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, client *designservice.Client, cache *DesignCache) error {
			return runExport(ctx, cmd.OutOrStdout(), client, cache, args[0], designName)
		})
	},
}

var showCmd = &cobra.Command{
	Use:   "show <hash>",
	Short: "Print a design by hash, from the cache or from the service",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withClient(cmd.Context(), func(ctx context.Context, client *designservice.Client, cache *DesignCache) error {
			return runShow(ctx, cmd.OutOrStdout(), client, cache, projectID, args[0])
		})
	},
}

func registerRemoteCommands(root *cobra.Command) {
	root.AddCommand(exportCmd, showCmd)

	for _, c := range []*cobra.Command{exportCmd, showCmd} {
		c.Flags().StringVar(&serverAddr, "addr", "localhost:50061", "Design service address")
	}
	exportCmd.Flags().StringVarP(&designName, "name", "n", "", "Design name (defaults to the project name)")
	showCmd.Flags().StringVarP(&projectID, "project", "p", "", "Project to look the hash up in when it is not cached")
}

func withClient(ctx context.Context, fn func(ctx context.Context, client *designservice.Client, cache *DesignCache) error) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	conn, err := grpc.Dial(serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return fmt.Errorf("failed to connect to design service: %w", err)
	}
	defer conn.Close()

	cache, err := NewDesignCache()
	if err != nil {
		return err
	}
	return fn(ctx, designservice.NewClient(conn), cache)
}

type exportReply struct {
	Status string          `json:"status"`
	Design json.RawMessage `json:"design"`
}

type designHeader struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Hash string `json:"hash"`
}

func runExport(ctx context.Context, w io.Writer, client *designservice.Client, cache *DesignCache, project, name string) error {
	var reply exportReply
	req := map[string]any{"projectId": project, "name": name}
	if err := client.Call(ctx, designservice.MethodExport, req, &reply); err != nil {
		return fmt.Errorf("export failed: %w", err)
	}
	var head designHeader
	if err := json.Unmarshal(reply.Design, &head); err != nil {
		return fmt.Errorf("decode design: %w", err)
	}
	if err := cache.Store(head.Hash, reply.Design); err != nil {
		return fmt.Errorf("cache design: %w", err)
	}

	switch reply.Status {
	case designservice.ExportDuplicate:
		fmt.Fprintf(w, "A design with this selection already exists: %s (%s)\n", head.Name, head.ID)
	case designservice.ExportUnchanged:
		fmt.Fprintf(w, "Selection unchanged since design %s (%s)\n", head.Name, head.ID)
	default:
		fmt.Fprintf(w, "Design exported: %s (%s)\n", head.Name, head.ID)
	}
	_, err := fmt.Fprintf(w, "Hash: %s\n", head.Hash)
	return err
}

func runShow(ctx context.Context, w io.Writer, client *designservice.Client, cache *DesignCache, project, hash string) error {
	if ok, err := cache.Has(hash); err != nil {
		return err
	} else if ok {
		raw, err := cache.Read(hash)
		if err != nil {
			return err
		}
		_, err = w.Write(append(raw, '\n'))
		return err
	}
	if project == "" {
		return fmt.Errorf("design %s is not cached; pass --project to look it up", hash)
	}

	var reply struct {
		Exists bool            `json:"exists"`
		Design json.RawMessage `json:"design"`
	}
	req := map[string]any{"projectId": project, "hash": hash}
	if err := client.Call(ctx, designservice.MethodFindDesign, req, &reply); err != nil {
		return fmt.Errorf("lookup failed: %w", err)
	}
	if !reply.Exists {
		return fmt.Errorf("no design with hash %s in project %s", hash, project)
	}
	if err := cache.Store(hash, reply.Design); err != nil {
		return err
	}
	_, err := w.Write(append(reply.Design, '\n'))
	return err
}
