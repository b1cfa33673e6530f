package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

// textExtensions are the file types worth indexing. Everything else is
// skipped during directory walks.
var textExtensions = map[string]bool{
	".txt": true, ".md": true, ".markdown": true,
	".rst": true, ".adoc": true,
	".go": true, ".py": true, ".js": true, ".ts": true,
	".json": true, ".yaml": true, ".yml": true, ".toml": true,
	".html": true, ".css": true, ".csv": true,
}

func ingestCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ingest <path>...",
		Short: "Index documents into a running server's knowledge base",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, _ := cmd.Flags().GetString("url")
			token, _ := cmd.Flags().GetString("token")
			collection, _ := cmd.Flags().GetString("collection")
			recursive, _ := cmd.Flags().GetBool("recursive")

			client := &ingestClient{
				baseURL: strings.TrimRight(url, "/"),
				token:   token,
				http:    &http.Client{Timeout: 60 * time.Second},
			}

			files, err := collectFiles(args, recursive)
			if err != nil {
				return err
			}
			if len(files) == 0 {
				return fmt.Errorf("no indexable files found")
			}

			var total int
			for _, path := range files {
				chunks, err := client.ingestFile(path, collection)
				if err != nil {
					return fmt.Errorf("ingest %s: %w", path, err)
				}
				fmt.Printf("  %s: %d chunks\n", path, chunks)
				total += chunks
			}
			fmt.Printf("Indexed %d files (%d chunks) into collection %q\n",
				len(files), total, collection)
			return nil
		},
	}
	cmd.Flags().String("url", "http://127.0.0.1:8080", "Bridge server URL")
	cmd.Flags().String("token", "", "Bearer token for authentication")
	cmd.Flags().StringP("collection", "C", "default", "Target collection")
	cmd.Flags().BoolP("recursive", "r", false, "Recurse into directories")
	return cmd
}

// collectFiles expands the given paths into indexable files. Directories
// are walked only with --recursive; files are taken as given regardless
// of extension.
func collectFiles(paths []string, recursive bool) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, err
		}
		if !info.IsDir() {
			files = append(files, path)
			continue
		}
		if !recursive {
			return nil, fmt.Errorf("%s is a directory (use --recursive)", path)
		}
		err = filepath.WalkDir(path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				if strings.HasPrefix(d.Name(), ".") && p != path {
					return filepath.SkipDir
				}
				return nil
			}
			if textExtensions[strings.ToLower(filepath.Ext(p))] {
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

type ingestClient struct {
	baseURL string
	token   string
	http    *http.Client
}

func (c *ingestClient) ingestFile(path, collection string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}

	body, err := json.Marshal(map[string]string{
		"collection": collection,
		"source":     filepath.Base(path),
		"text":       string(data),
	})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequest(http.MethodPost, c.baseURL+"/documents/ingest", bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return 0, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var out struct {
		Chunks int `json:"chunks"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, err
	}
	return out.Chunks, nil
}
