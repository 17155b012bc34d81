package fileio

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/bytedance/sonic"

	"github.com/penwyp/ScreenCat/logging"
	"github.com/penwyp/ScreenCat/models"
)

// AppAssignment maps a package to a category
type AppAssignment struct {
	Package    string `json:"package"`
	CategoryID int64  `json:"category_id"`
	Excluded   bool   `json:"excluded"`
}

// CatalogData is the on-disk catalog document
type CatalogData struct {
	DefaultCategoryID int64             `json:"default_category_id"`
	Categories        []models.Category `json:"categories"`
	Apps              []AppAssignment   `json:"apps"`
	Goals             []models.Goal     `json:"goals"`
}

// Catalog resolves packages to categories and exposes goals. It can be
// reloaded while other goroutines read it.
type Catalog struct {
	path   string
	logger logging.LoggerInterface

	mu         sync.RWMutex
	data       CatalogData
	apps       map[string]AppAssignment
	categories map[int64]models.Category
}

// NewCatalog builds an in-memory catalog
func NewCatalog(data CatalogData) (*Catalog, error) {
	c := &Catalog{logger: logging.NewNopLogger()}
	if err := c.apply(data); err != nil {
		return nil, err
	}
	return c, nil
}

// LoadCatalog reads the catalog at path. A missing file yields an empty
// catalog in which every package falls into category 0.
func LoadCatalog(path string, logger logging.LoggerInterface) (*Catalog, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Catalog{path: path, logger: logger}
	if err := c.Reload(); err != nil {
		return nil, err
	}
	return c, nil
}

// Reload re-reads the catalog file. On failure the previous contents stay in effect.
func (c *Catalog) Reload() error {
	if c.path == "" {
		return nil
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.logger.Infof("catalog not found, using empty catalog path=%s", c.path)
			return c.apply(CatalogData{})
		}
		return fmt.Errorf("failed to read catalog %s: %w", c.path, err)
	}

	var data CatalogData
	if err := sonic.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("failed to parse catalog %s: %w", c.path, err)
	}
	if err := c.apply(data); err != nil {
		return err
	}
	c.logger.Infof("catalog loaded path=%s categories=%d apps=%d goals=%d",
		c.path, len(data.Categories), len(data.Apps), len(data.Goals))
	return nil
}

func (c *Catalog) apply(data CatalogData) error {
	categories := make(map[int64]models.Category, len(data.Categories))
	for _, cat := range data.Categories {
		if cat.ID == models.AggregateCategoryID {
			return fmt.Errorf("category id %d is reserved", cat.ID)
		}
		categories[cat.ID] = cat
	}
	apps := make(map[string]AppAssignment, len(data.Apps))
	for _, app := range data.Apps {
		if app.Package == "" {
			return fmt.Errorf("app assignment without package")
		}
		apps[app.Package] = app
	}
	for _, goal := range data.Goals {
		if err := goal.Validate(); err != nil {
			return fmt.Errorf("invalid goal: %w", err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = data
	c.apps = apps
	c.categories = categories
	return nil
}

// CategoryOf returns the package's category, or the default category when unassigned
func (c *Catalog) CategoryOf(pkg string) int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if app, ok := c.apps[pkg]; ok {
		return app.CategoryID
	}
	return c.data.DefaultCategoryID
}

// IsExcludedPackage reports whether the package is excluded from statistics
func (c *Catalog) IsExcludedPackage(pkg string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.apps[pkg].Excluded
}

// IsExcludedCategory reports whether the category is excluded from statistics
func (c *Catalog) IsExcludedCategory(id int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.categories[id].ExcludeFromStats
}

// CategoryName returns the display name of a category
func (c *Catalog) CategoryName(id int64) string {
	if id == models.AggregateCategoryID {
		return "All"
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if cat, ok := c.categories[id]; ok && cat.Name != "" {
		return cat.Name
	}
	return fmt.Sprintf("category %d", id)
}

// Categories returns the categories ordered by id
func (c *Catalog) Categories() []models.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Category, 0, len(c.categories))
	for _, cat := range c.categories {
		out = append(out, cat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Goals returns a copy of the configured goals
func (c *Catalog) Goals() []models.Goal {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]models.Goal(nil), c.data.Goals...)
}

// SaveCatalog writes data to path as indented JSON
func SaveCatalog(path string, data CatalogData) error {
	raw, err := sonic.ConfigStd.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode catalog: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create catalog directory: %w", err)
	}
	return os.WriteFile(path, raw, 0644)
}
