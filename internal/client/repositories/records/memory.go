package records

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/docuploader/internal/client/models"
	"github.com/dmitrijs2005/docuploader/internal/common"
)

// MemoryRepository keeps records in process. It backs the CLI when no portal
// database is configured, and doubles as a test collaborator.
type MemoryRepository struct {
	mu       sync.RWMutex
	articles map[string]*models.Article
	users    map[string]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		articles: map[string]*models.Article{},
		users:    map[string]*models.User{},
	}
}

// PutArticle inserts or replaces an article.
func (m *MemoryRepository) PutArticle(a *models.Article) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.articles[a.ID] = cloneArticle(a)
}

// PutUser inserts or replaces a user.
func (m *MemoryRepository) PutUser(u *models.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *u
	m.users[u.ID] = &c
}

func (m *MemoryRepository) Article(_ context.Context, id string) (*models.Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.articles[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneArticle(a), nil
}

func (m *MemoryRepository) SaveArticle(_ context.Context, a *models.Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.articles[a.ID]; !ok {
		return common.ErrorNotFound
	}
	m.articles[a.ID] = cloneArticle(a)
	return nil
}

func (m *MemoryRepository) User(_ context.Context, id string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (m *MemoryRepository) SaveUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.ID]; !ok {
		return common.ErrorNotFound
	}
	c := *u
	m.users[u.ID] = &c
	return nil
}

func cloneArticle(a *models.Article) *models.Article {
	c := &models.Article{ID: a.ID, Draft: a.Draft, Fields: make(map[string]string, len(a.Fields))}
	for k, v := range a.Fields {
		c.Fields[k] = v
	}
	c.Attachments = append([]models.Attachment(nil), a.Attachments...)
	return c
}
