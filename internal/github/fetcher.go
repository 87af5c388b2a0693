// Package github loads markdown documents straight from a GitHub repository.
package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/rag-assistant/internal/loader"
)

// Fetcher lists and loads documents under a base path of one repository.
// It implements loader.Loader; paths are relative to the base path.
type Fetcher struct {
	repos    repositoryService
	owner    string
	repo     string
	basePath string
}

// repositoryService is the subset of the GitHub repositories API in use.
type repositoryService interface {
	GetContents(ctx context.Context, owner, repo, path string, opts *github.RepositoryContentGetOptions) (*github.RepositoryContent, []*github.RepositoryContent, *github.Response, error)
	ListCommits(ctx context.Context, owner, repo string, opts *github.CommitsListOptions) ([]*github.RepositoryCommit, *github.Response, error)
}

var _ loader.Loader = (*Fetcher)(nil)

// NewFetcher creates a new document fetcher
func NewFetcher(client *Client, owner, repo, basePath string) *Fetcher {
	return newFetcher(client.Repositories, owner, repo, basePath)
}

func newFetcher(repos repositoryService, owner, repo, basePath string) *Fetcher {
	return &Fetcher{repos: repos, owner: owner, repo: repo, basePath: basePath}
}

// List recursively lists supported documents below dir, sorted.
func (f *Fetcher) List(ctx context.Context, dir string) ([]string, error) {
	docs, err := f.listRecursive(ctx, path.Join(f.basePath, dir), dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(docs, func(i, j int) bool {
		return strings.ToLower(docs[i]) < strings.ToLower(docs[j])
	})
	return docs, nil
}

func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var docs []string

	_, dirContents, _, err := f.repos.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		if item.Type == nil || item.Name == nil {
			continue
		}

		itemRelPath := path.Join(relativePath, *item.Name)

		switch *item.Type {
		case "file":
			if loader.Supported(*item.Name) {
				docs = append(docs, itemRelPath)
			}
		case "dir":
			subDocs, err := f.listRecursive(ctx, path.Join(fullPath, *item.Name), itemRelPath)
			if err != nil {
				return nil, err
			}
			docs = append(docs, subDocs...)
		}
	}

	return docs, nil
}

// Load fetches one document. The document source is its path relative to
// the base path.
func (f *Fetcher) Load(ctx context.Context, relativePath string) (*loader.Document, error) {
	if !loader.Supported(relativePath) {
		return nil, &loader.Error{Path: relativePath, Kind: loader.ErrUnsupportedFormat}
	}
	fullPath := path.Join(f.basePath, relativePath)

	fileContent, _, resp, err := f.repos.GetContents(ctx, f.owner, f.repo, fullPath, nil)
	if err != nil {
		if resp != nil && resp.StatusCode == 404 {
			return nil, &loader.Error{Path: fullPath, Kind: loader.ErrNotFound, Err: err}
		}
		return nil, &loader.Error{Path: fullPath, Kind: loader.ErrRead, Err: err}
	}
	if fileContent == nil || fileContent.Content == nil {
		return nil, &loader.Error{Path: fullPath, Kind: loader.ErrNotFound, Err: fmt.Errorf("no file content returned")}
	}

	content, err := base64.StdEncoding.DecodeString(*fileContent.Content)
	if err != nil {
		// The contents API wraps base64 at 60 columns.
		content, err = base64.StdEncoding.DecodeString(strings.ReplaceAll(*fileContent.Content, "\n", ""))
		if err != nil {
			return nil, &loader.Error{Path: fullPath, Kind: loader.ErrDecode, Err: err}
		}
	}

	doc := loader.NewDocument(relativePath, string(content))
	doc.Source = relativePath
	doc.Path = fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/main/%s", f.owner, f.repo, fullPath)
	return doc, nil
}

// LatestCommitSHA returns the SHA of the most recent commit touching the base path.
func (f *Fetcher) LatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.repos.ListCommits(ctx, f.owner, f.repo, &github.CommitsListOptions{
		Path:        f.basePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}
	if len(commits) == 0 || commits[0].SHA == nil {
		return "", fmt.Errorf("no commits found for path %s", f.basePath)
	}
	return *commits[0].SHA, nil
}
