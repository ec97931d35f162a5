// Package gitrepo keeps one git repository per document and commits every
// saved version as content.json on main.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

const (
	contentFile = "content.json"
	mainBranch  = "main"
)

var ErrRepoNotFound = errors.New("gitrepo: document repository not found")

type Content struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	Version int64  `json:"version"`
}

type Revision struct {
	Hash      string    `json:"hash"`
	Version   int64     `json:"version"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
	now     func() time.Time
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
		now:     time.Now,
	}
}

// EnsureDocumentRepo initializes the repository with initial as its first
// commit. It does nothing when the repository already exists.
func (s *Service) EnsureDocumentRepo(documentID string, initial Content, author string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	path := s.repoPath(documentID)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat repo path: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create repo dir: %w", err)
	}

	repo, err := git.PlainInit(path, false)
	if err != nil {
		return fmt.Errorf("init repo: %w", err)
	}
	// Point HEAD at main before the first commit so it lands there.
	if err := repo.Storer.SetReference(plumbing.NewSymbolicReference(plumbing.HEAD, plumbing.NewBranchReferenceName(mainBranch))); err != nil {
		return fmt.Errorf("set HEAD to main: %w", err)
	}
	_, err = s.commit(repo, initial, author, "Create document")
	return err
}

// CommitRevision records content as the next revision on main and tags the
// commit with the content version.
func (s *Service) CommitRevision(documentID string, content Content, author string) (Revision, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Revision{}, err
	}
	return s.commit(repo, content, author, fmt.Sprintf("Save version %d", content.Version))
}

// History lists revisions newest first. limit <= 0 returns all of them.
func (s *Service) History(documentID string, limit int) ([]Revision, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return nil, err
	}
	ref, err := repo.Reference(plumbing.NewBranchReferenceName(mainBranch), true)
	if err != nil {
		return nil, fmt.Errorf("resolve main: %w", err)
	}
	iter, err := repo.Log(&git.LogOptions{From: ref.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]Revision, 0)
	err = iter.ForEach(func(commitObj *object.Commit) error {
		content, err := readContent(commitObj)
		if err != nil {
			return err
		}
		items = append(items, toRevision(commitObj, content.Version))
		if limit > 0 && len(items) >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// GetContentByHash accepts a full or abbreviated commit hash.
func (s *Service) GetContentByHash(documentID, hash string) (Content, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Content{}, err
	}
	resolved := plumbing.NewHash(hash)
	if len(hash) != 40 {
		prefix, err := repo.ResolveRevision(plumbing.Revision(hash))
		if err != nil {
			return Content{}, fmt.Errorf("resolve hash %s: %w", hash, err)
		}
		resolved = *prefix
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return Content{}, fmt.Errorf("read commit %s: %w", hash, err)
	}
	return readContent(commitObj)
}

// GetContentByVersion looks a revision up through its version tag.
func (s *Service) GetContentByVersion(documentID string, version int64) (Content, error) {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.open(documentID)
	if err != nil {
		return Content{}, err
	}
	ref, err := repo.Tag(versionTag(version))
	if err != nil {
		return Content{}, fmt.Errorf("resolve version %d: %w", version, err)
	}
	tagObj, err := repo.TagObject(ref.Hash())
	if err != nil {
		return Content{}, fmt.Errorf("read tag for version %d: %w", version, err)
	}
	commitObj, err := tagObj.Commit()
	if err != nil {
		return Content{}, fmt.Errorf("read tagged commit for version %d: %w", version, err)
	}
	return readContent(commitObj)
}

func (s *Service) DeleteDocumentRepo(documentID string) error {
	lock := s.documentLock(documentID)
	lock.Lock()
	defer lock.Unlock()

	if err := os.RemoveAll(s.repoPath(documentID)); err != nil {
		return fmt.Errorf("remove repo: %w", err)
	}
	return nil
}

type DiffSummary struct {
	TitleChanged bool `json:"titleChanged"`
	WordsAdded   int  `json:"wordsAdded"`
	WordsRemoved int  `json:"wordsRemoved"`
}

// Diff compares two revisions as bags of words.
func Diff(from, to Content) DiffSummary {
	counts := make(map[string]int)
	for _, word := range strings.Fields(from.Body) {
		counts[word]--
	}
	for _, word := range strings.Fields(to.Body) {
		counts[word]++
	}
	summary := DiffSummary{TitleChanged: from.Title != to.Title}
	for _, delta := range counts {
		if delta > 0 {
			summary.WordsAdded += delta
		} else {
			summary.WordsRemoved -= delta
		}
	}
	return summary
}

func (s *Service) repoPath(documentID string) string {
	return filepath.Join(s.baseDir, documentID)
}

func (s *Service) open(documentID string) (*git.Repository, error) {
	repo, err := git.PlainOpen(s.repoPath(documentID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("%w: %s", ErrRepoNotFound, documentID)
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	return repo, nil
}

func (s *Service) documentLock(documentID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[documentID] = lock
	}
	return lock
}

func (s *Service) commit(repo *git.Repository, content Content, author, message string) (Revision, error) {
	worktree, err := repo.Worktree()
	if err != nil {
		return Revision{}, fmt.Errorf("open worktree: %w", err)
	}
	payload, err := json.MarshalIndent(content, "", "  ")
	if err != nil {
		return Revision{}, fmt.Errorf("marshal content: %w", err)
	}
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), contentFile), append(payload, '\n'), 0o644); err != nil {
		return Revision{}, fmt.Errorf("write %s: %w", contentFile, err)
	}
	if _, err := worktree.Add(contentFile); err != nil {
		return Revision{}, fmt.Errorf("git add: %w", err)
	}

	signature := &object.Signature{
		Name:  author,
		Email: sanitizeEmail(author) + "@users.draftwise.local",
		When:  s.now(),
	}
	hash, err := worktree.Commit(message, &git.CommitOptions{
		Author:            signature,
		AllowEmptyCommits: true,
	})
	if err != nil {
		return Revision{}, fmt.Errorf("commit content: %w", err)
	}
	_, err = repo.CreateTag(versionTag(content.Version), hash, &git.CreateTagOptions{
		Tagger:  signature,
		Message: message,
	})
	if err != nil && !errors.Is(err, git.ErrTagExists) {
		return Revision{}, fmt.Errorf("tag version %d: %w", content.Version, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Revision{}, fmt.Errorf("read commit object: %w", err)
	}
	return toRevision(commitObj, content.Version), nil
}

func readContent(commitObj *object.Commit) (Content, error) {
	file, err := commitObj.File(contentFile)
	if err != nil {
		return Content{}, fmt.Errorf("load %s from commit: %w", contentFile, err)
	}
	raw, err := file.Contents()
	if err != nil {
		return Content{}, fmt.Errorf("read %s: %w", contentFile, err)
	}
	var content Content
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return Content{}, fmt.Errorf("decode commit content: %w", err)
	}
	return content, nil
}

func toRevision(commitObj *object.Commit, version int64) Revision {
	return Revision{
		Hash:      commitObj.Hash.String()[:7],
		Version:   version,
		Message:   strings.TrimSpace(commitObj.Message),
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func versionTag(version int64) string {
	return fmt.Sprintf("v%d", version)
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range strings.ToLower(input) {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == ' ' || r == '-' || r == '_' || r == '.':
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}
