package usage

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"tsel/internal/logging"
	"tsel/internal/pysrc"
)

const ordersPageSource = `class OrdersPage:
    def open_orders(self):
        self.driver.click(ORDERS_TAB_LOCATOR)

    def submit_order(self, order):
        self.driver.click(SUBMIT_BUTTON_LOCATOR)
        return self.wait_for_confirmation()

    def wait_for_confirmation(self):
        return self.driver.wait("#confirmation")
`

func newIndexer(t *testing.T) *Indexer {
	t.Helper()
	parser, err := pysrc.NewSpanParser("regex")
	if err != nil {
		t.Fatalf("NewSpanParser failed: %v", err)
	}
	return NewIndexer(parser, logging.Discard())
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create dir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write %s: %v", rel, err)
	}
}

func TestExpandLocatorsFindsUsingMethods(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/orders_page.py", ordersPageSource)

	ix := newIndexer(t)
	got := ix.ExpandLocators(root, []string{"pages"}, []string{"SUBMIT_BUTTON_LOCATOR"})

	if !reflect.DeepEqual(got, []string{"submit_order"}) {
		t.Errorf("Expected [submit_order], got %v", got)
	}
}

func TestExpandLocatorsUnreferencedLocator(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/orders_page.py", ordersPageSource)

	ix := newIndexer(t)
	got := ix.ExpandLocators(root, []string{"pages"}, []string{"NONEXISTENT_LOCATOR"})

	if len(got) != 0 {
		t.Errorf("Expected empty expansion, got %v", got)
	}
}

func TestExpandLocatorsSkipsTestFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/test_helpers.py",
		"def helper_method(self):\n    click(SUBMIT_BUTTON_LOCATOR)\n")

	ix := newIndexer(t)
	got := ix.ExpandLocators(root, []string{"pages"}, []string{"SUBMIT_BUTTON_LOCATOR"})

	if len(got) != 0 {
		t.Errorf("Expected test files to be skipped, got %v", got)
	}
}

func TestExpandLocatorsAcrossRoots(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "pages/orders_page.py", ordersPageSource)
	writeFile(t, root, "core/nav.py",
		"def go_to_orders(driver):\n    driver.click(ORDERS_TAB_LOCATOR)\n")

	ix := newIndexer(t)
	got := ix.ExpandLocators(root, []string{"pages", "core"},
		[]string{"ORDERS_TAB_LOCATOR", "SUBMIT_BUTTON_LOCATOR"})

	want := []string{"go_to_orders", "open_orders", "submit_order"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Expected %v, got %v", want, got)
	}
}

func TestExpandLocatorsNoLocators(t *testing.T) {
	ix := newIndexer(t)
	if got := ix.ExpandLocators(t.TempDir(), []string{"pages"}, nil); got != nil {
		t.Errorf("Expected nil for empty locator set, got %v", got)
	}
}

func TestExpandLocatorsMissingRoot(t *testing.T) {
	ix := newIndexer(t)
	got := ix.ExpandLocators(t.TempDir(), []string{"does-not-exist"}, []string{"X_LOCATOR"})
	if len(got) != 0 {
		t.Errorf("Expected empty expansion for missing root, got %v", got)
	}
}
