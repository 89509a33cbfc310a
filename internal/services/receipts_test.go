package services

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"pettycash/internal/auth"
	"pettycash/internal/database"
	"pettycash/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

type ReceiptServiceSuite struct {
	suite.Suite
	db        *database.DB
	receipts  *ReceiptService
	uploadDir string
	user      *models.User
}

func (s *ReceiptServiceSuite) SetupTest() {
	db, err := database.New(":memory:")
	require.NoError(s.T(), err, "failed to create test database")
	db.SetMaxOpenConns(1)
	s.db = db
	s.uploadDir = s.T().TempDir()
	s.receipts = NewReceiptService(db, s.uploadDir)

	users := auth.NewUserService(db)
	user, _, err := users.CreateWithTempPassword("carol", "Carol Jones", models.RoleUser)
	require.NoError(s.T(), err)
	s.user = user
}

func (s *ReceiptServiceSuite) TearDownTest() {
	if s.db != nil {
		s.db.Close()
	}
}

func (s *ReceiptServiceSuite) TestStoreWritesFileThenRow() {
	receipt, err := s.receipts.Store(s.user.ID, nil, strings.NewReader("fake image bytes"), "taxi.png", "Taxi to airport", 42.50)
	require.NoError(s.T(), err)

	assert.True(s.T(), strings.HasSuffix(receipt.Filename, "_taxi.png"), "stored name keeps the sanitized original: %s", receipt.Filename)
	content, err := os.ReadFile(filepath.Join(s.uploadDir, receipt.Filename))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "fake image bytes", string(content))

	listed, err := s.receipts.ListRecentByUser(s.user.ID, 5)
	require.NoError(s.T(), err)
	require.Len(s.T(), listed, 1)
	assert.Equal(s.T(), receipt.Filename, listed[0].Filename)
	assert.Nil(s.T(), listed[0].RequestID)
}

func (s *ReceiptServiceSuite) TestStoredNamesPairwiseDistinct() {
	// Same original filename and description, uploaded back to back
	// (typically within the same second)
	first, err := s.receipts.Store(s.user.ID, nil, strings.NewReader("one"), "receipt.jpg", "Lunch", 10.00)
	require.NoError(s.T(), err)
	second, err := s.receipts.Store(s.user.ID, nil, strings.NewReader("two"), "receipt.jpg", "Lunch", 10.00)
	require.NoError(s.T(), err)

	assert.NotEqual(s.T(), first.Filename, second.Filename)

	a, err := os.ReadFile(filepath.Join(s.uploadDir, first.Filename))
	require.NoError(s.T(), err)
	b, err := os.ReadFile(filepath.Join(s.uploadDir, second.Filename))
	require.NoError(s.T(), err)
	assert.Equal(s.T(), "one", string(a))
	assert.Equal(s.T(), "two", string(b))
}

func (s *ReceiptServiceSuite) TestStoreValidation() {
	_, err := s.receipts.Store(s.user.ID, nil, nil, "", "Lunch", 10.00)
	assert.ErrorIs(s.T(), err, ErrMissingFile)

	_, err = s.receipts.Store(s.user.ID, nil, strings.NewReader("x"), "receipt.jpg", "Lunch", 0)
	assert.ErrorIs(s.T(), err, ErrInvalidAmount)

	_, err = s.receipts.Store(s.user.ID, nil, strings.NewReader("x"), "receipt.jpg", "Lunch", -5)
	assert.ErrorIs(s.T(), err, ErrInvalidAmount)

	// Non-finite amounts parse as floats but are not valid money
	for _, amount := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		_, err = s.receipts.Store(s.user.ID, nil, strings.NewReader("x"), "receipt.jpg", "Lunch", amount)
		assert.ErrorIs(s.T(), err, ErrInvalidAmount, "amount %v", amount)
	}

	files, err := os.ReadDir(s.uploadDir)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), files, "failed uploads must not leave files behind")

	listed, err := s.receipts.ListRecentByUser(s.user.ID, 5)
	require.NoError(s.T(), err)
	assert.Empty(s.T(), listed, "failed uploads must not leave rows behind")
}

func (s *ReceiptServiceSuite) TestListRecentLimit() {
	for _, desc := range []string{"a", "b", "c"} {
		_, err := s.receipts.Store(s.user.ID, nil, strings.NewReader(desc), desc+".txt", desc, 1.00)
		require.NoError(s.T(), err)
	}

	listed, err := s.receipts.ListRecentByUser(s.user.ID, 2)
	require.NoError(s.T(), err)
	assert.Len(s.T(), listed, 2)
	assert.Equal(s.T(), "c", listed[0].Description, "newest first")
}

func TestSanitizeFilename(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"report.pdf", "report.pdf"},
		{"my receipt (1).png", "my_receipt__1_.png"},
		{"../../etc/passwd", "passwd"},
		{`..\..\windows\system32\evil.exe`, "evil.exe"},
		{".hidden", "hidden"},
		{"..", ""},
		{"", ""},
		{"Déjeuner.jpg", "D_jeuner.jpg"},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, SanitizeFilename(tc.in), "input %q", tc.in)
	}
}

func TestReceiptServiceSuite(t *testing.T) {
	suite.Run(t, new(ReceiptServiceSuite))
}
