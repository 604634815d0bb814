package dialog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"schoolbot/internal/blobstore"
	"schoolbot/internal/catalog"
)

type fakeCatalog struct {
	materials []catalog.Material
	requests  []catalog.Request
	nextID    int64

	listErr error
}

func (f *fakeCatalog) ListMaterials(_ context.Context, grade int, subject, category string) ([]catalog.Listing, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	var out []catalog.Listing
	for _, m := range f.materials {
		if m.Grade == grade && m.Subject == subject && m.Category == category {
			out = append(out, catalog.Listing{
				Topic: m.Topic, Downloads: m.Downloads,
				StoragePath: m.StoragePath, DisplayName: m.DisplayName,
			})
		}
	}
	return out, nil
}

func (f *fakeCatalog) FetchMaterial(_ context.Context, key catalog.Key) (catalog.Material, error) {
	for _, m := range f.materials {
		if m.Key() == key {
			return m, nil
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (f *fakeCatalog) IncrementDownloads(_ context.Context, key catalog.Key) (int64, error) {
	var n int64
	for i := range f.materials {
		if f.materials[i].Key() == key {
			f.materials[i].Downloads++
			n++
		}
	}
	if n == 0 {
		return 0, catalog.ErrNotFound
	}
	return n, nil
}

func (f *fakeCatalog) InsertMaterial(_ context.Context, m catalog.Material) (int64, error) {
	f.nextID++
	m.ID = f.nextID
	f.materials = append(f.materials, m)
	return m.ID, nil
}

func (f *fakeCatalog) DeleteMaterial(_ context.Context, id int64) (catalog.Material, error) {
	for i, m := range f.materials {
		if m.ID == id {
			f.materials = append(f.materials[:i], f.materials[i+1:]...)
			return m, nil
		}
	}
	return catalog.Material{}, catalog.ErrNotFound
}

func (f *fakeCatalog) CreateRequest(_ context.Context, r catalog.Request) (int64, error) {
	f.nextID++
	r.ID = f.nextID
	f.requests = append(f.requests, r)
	return r.ID, nil
}

type fakeBlobs struct {
	saved   []blobstore.Saved
	removed []string
	saveErr error
}

func (f *fakeBlobs) Save(_ context.Context, grade int, subject, category, name string, r io.Reader) (blobstore.Saved, error) {
	if f.saveErr != nil {
		return blobstore.Saved{}, f.saveErr
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return blobstore.Saved{}, err
	}
	s := blobstore.Saved{
		Path: fmt.Sprintf("%d/%s/%s/%s", grade, subject, category, name),
		Name: name,
		Size: int64(len(data)),
	}
	f.saved = append(f.saved, s)
	return s, nil
}

func (f *fakeBlobs) Remove(rel string) (bool, error) {
	f.removed = append(f.removed, rel)
	return true, nil
}

type fakeFiles struct{ data map[string]string }

func (f *fakeFiles) Open(_ context.Context, ref string) (io.ReadCloser, error) {
	body, ok := f.data[ref]
	if !ok {
		return nil, errors.New("unknown ref")
	}
	return io.NopCloser(bytes.NewReader([]byte(body))), nil
}

type fakeMatcher struct{ matched int }

func (f *fakeMatcher) Resolve(context.Context, catalog.Material) (int, error) {
	return f.matched, nil
}

func testMaterial(topic string) catalog.Material {
	return catalog.Material{
		ID: 1, Grade: 9, Subject: "Физика", Category: "Конспекты", Topic: topic,
		StoragePath: "9/Физика/Конспекты/notes.pdf", DisplayName: "notes.pdf", Downloads: 4,
	}
}

func newTestEngine(cat *fakeCatalog, blobs *fakeBlobs, files *fakeFiles, m *fakeMatcher) *Engine {
	if cat == nil {
		cat = &fakeCatalog{}
	}
	if blobs == nil {
		blobs = &fakeBlobs{}
	}
	if files == nil {
		files = &fakeFiles{}
	}
	if m == nil {
		m = &fakeMatcher{}
	}
	return NewEngine(cat, blobs, files, m, nil)
}

// walk feeds a sequence of raw texts through the classifier and the engine.
func walk(t *testing.T, e *Engine, userID int64, texts ...string) Result {
	t.Helper()
	var last Result
	for _, txt := range texts {
		var err error
		last, err = e.HandleInput(context.Background(), userID, Classify(txt))
		require.NoError(t, err, "input %q", txt)
	}
	return last
}

func TestStartFlowAdminOnly(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)

	_, err := e.StartFlow(context.Background(), 1, FlowAdminAdd, false)
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.False(t, e.InProgress(1))

	_, err = e.StartFlow(context.Background(), 1, FlowAdminAdd, true)
	require.NoError(t, err)
	assert.True(t, e.InProgress(1))
}

func TestHandleInputWithoutSession(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.HandleInput(context.Background(), 7, Classify("привет"))
	assert.ErrorIs(t, err, ErrNoActiveFlow)
}

func TestBrowseFullWalkthrough(t *testing.T) {
	cat := &fakeCatalog{materials: []catalog.Material{testMaterial("Законы Ньютона")}}
	e := newTestEngine(cat, nil, nil, nil)

	p, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)
	assert.Contains(t, p.Text, "класс")

	res := walk(t, e, 1, "9 класс", "Физика", "Конспекты", "Законы Ньютона")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeDelivery, res.Outcome.Kind)
	require.NotNil(t, res.Outcome.Material)
	assert.Equal(t, "notes.pdf", res.Outcome.Material.DisplayName)
	// Delivered counter includes this download.
	assert.Equal(t, int64(5), res.Outcome.Material.Downloads)
	assert.Equal(t, int64(5), cat.materials[0].Downloads)
	assert.False(t, e.InProgress(1))
}

func TestBrowseInvalidInputKeepsState(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)

	// Garbage in the grade state re-asks for the grade and moves nothing.
	res := walk(t, e, 1, "двенадцатый")
	require.NotNil(t, res.Prompt)
	assert.Nil(t, res.Outcome)
	s, ok := e.Session(1)
	require.True(t, ok)
	assert.Equal(t, StateSelectGrade, s.State())

	// Repeating the same garbage yields the same prompt again.
	res2 := walk(t, e, 1, "двенадцатый")
	assert.Equal(t, res.Prompt.Text, res2.Prompt.Text)
}

func TestBrowseBackDiscardsOnlyOneLevel(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)

	walk(t, e, 1, "9 класс", "Физика")
	s, _ := e.Session(1)
	assert.Equal(t, StateSelectCategory, s.State())

	// Back drops the subject, keeps the grade.
	res := walk(t, e, 1, "Назад")
	s, _ = e.Session(1)
	assert.Equal(t, StateSelectSubject, s.State())
	assert.Equal(t, 9, s.browse.Grade)
	assert.Empty(t, s.browse.Subject)
	require.NotNil(t, res.Prompt)

	// Subject can be re-picked without re-entering the grade.
	walk(t, e, 1, "Химия")
	s, _ = e.Session(1)
	assert.Equal(t, StateSelectCategory, s.State())
	assert.Equal(t, "Химия", s.browse.Subject)
}

func TestBrowseBackAtEntryCancels(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)

	res := walk(t, e, 1, "Назад")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeCancelled, res.Outcome.Kind)
	assert.False(t, e.InProgress(1))
}

func TestBrowseEmptyCategoryStays(t *testing.T) {
	e := newTestEngine(&fakeCatalog{}, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)

	res := walk(t, e, 1, "9 класс", "Физика", "Конспекты")
	require.NotNil(t, res.Prompt)
	assert.Nil(t, res.Outcome)
	assert.Contains(t, res.Prompt.Text, "пока нет материалов")
	s, _ := e.Session(1)
	assert.Equal(t, StateSelectCategory, s.State())
}

func TestCancelMidFlow(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)
	walk(t, e, 1, "7 класс")

	res := walk(t, e, 1, "Отмена")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeCancelled, res.Outcome.Kind)
	assert.False(t, e.InProgress(1))
}

func TestStartFlowLastEntryWins(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)
	walk(t, e, 1, "9 класс", "Физика")

	// A new flow discards the old session entirely.
	_, err = e.StartFlow(context.Background(), 1, FlowRequest, false)
	require.NoError(t, err)
	s, ok := e.Session(1)
	require.True(t, ok)
	assert.Equal(t, FlowRequest, s.Flow())
	assert.Equal(t, StateSelectGrade, s.State())
	assert.Equal(t, 0, s.request.Grade)
}

func TestRequestFlowWithDescription(t *testing.T) {
	cat := &fakeCatalog{}
	e := newTestEngine(cat, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 55, FlowRequest, false)
	require.NoError(t, err)

	res := walk(t, e, 55, "8 класс", "История", "Билеты к зачету", "Крестовые походы", "Нужны ответы на все билеты")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeRequestCreated, res.Outcome.Kind)
	req := res.Outcome.Request
	require.NotNil(t, req)
	assert.Equal(t, int64(55), req.RequesterID)
	assert.Equal(t, "Крестовые походы", req.Topic)
	require.NotNil(t, req.Description)
	assert.Equal(t, "Нужны ответы на все билеты", *req.Description)

	require.Len(t, cat.requests, 1)
	assert.Equal(t, catalog.StatusPending, cat.requests[0].Status)
}

func TestRequestFlowSkipDescription(t *testing.T) {
	cat := &fakeCatalog{}
	e := newTestEngine(cat, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 55, FlowRequest, false)
	require.NoError(t, err)

	res := walk(t, e, 55, "8 класс", "История", "Билеты к зачету", "Крестовые походы", "Пропустить описание")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeRequestCreated, res.Outcome.Kind)
	assert.Nil(t, res.Outcome.Request.Description)
}

func TestRequestTopicTooShortReAsks(t *testing.T) {
	cat := &fakeCatalog{}
	e := newTestEngine(cat, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 55, FlowRequest, false)
	require.NoError(t, err)
	walk(t, e, 55, "8 класс", "История", "Билеты к зачету")

	// Two runes is below the floor of three; the state must not advance.
	res := walk(t, e, 55, "аб")
	require.NotNil(t, res.Prompt)
	assert.Nil(t, res.Outcome)
	assert.Contains(t, res.Prompt.Text, "слишком короткая")
	s, _ := e.Session(55)
	assert.Equal(t, StateEnterTopic, s.State())
	assert.Empty(t, s.request.Topic)

	// Exactly three runes passes.
	res = walk(t, e, 55, "ЕГЭ")
	require.NotNil(t, res.Prompt)
	s, _ = e.Session(55)
	assert.Equal(t, StateEnterDesc, s.State())
	assert.Equal(t, "ЕГЭ", s.request.Topic)
	assert.Empty(t, cat.requests)
}

func TestAdminAddTopicTooShortReAsks(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 9000, FlowAdminAdd, true)
	require.NoError(t, err)
	walk(t, e, 9000, "9 класс", "Физика", "Конспекты")

	// One rune is below the floor of two; the state must not advance.
	res := walk(t, e, 9000, "x")
	require.NotNil(t, res.Prompt)
	assert.Nil(t, res.Outcome)
	assert.Contains(t, res.Prompt.Text, "слишком короткая")
	s, _ := e.Session(9000)
	assert.Equal(t, StateEnterTopic, s.State())
	assert.Empty(t, s.adminAdd.Topic)

	// Exactly two runes passes.
	walk(t, e, 9000, "ДЗ")
	s, _ = e.Session(9000)
	assert.Equal(t, StateAwaitFile, s.State())
	assert.Equal(t, "ДЗ", s.adminAdd.Topic)
}

func TestAdminAddFullWalkthrough(t *testing.T) {
	cat := &fakeCatalog{}
	blobs := &fakeBlobs{}
	files := &fakeFiles{data: map[string]string{"file-123": "содержимое"}}
	matcher := &fakeMatcher{matched: 2}
	e := newTestEngine(cat, blobs, files, matcher)

	_, err := e.StartFlow(context.Background(), 9000, FlowAdminAdd, true)
	require.NoError(t, err)
	walk(t, e, 9000, "9 класс", "Физика", "Конспекты", "Законы Ньютона")

	res, err := e.HandleInput(context.Background(), 9000, Attached(Attachment{
		Ref: "file-123", Name: "newton.pdf", Size: 10,
	}))
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeMaterialAdded, res.Outcome.Kind)
	assert.Equal(t, 2, res.Outcome.Matched)

	m := res.Outcome.Material
	require.NotNil(t, m)
	assert.Equal(t, "newton.pdf", m.DisplayName)
	assert.Equal(t, "9/Физика/Конспекты/newton.pdf", m.StoragePath)
	assert.Equal(t, int64(9000), m.UploadedBy)
	require.Len(t, cat.materials, 1)
	require.Len(t, blobs.saved, 1)
}

func TestAdminAddPhotoGetsGeneratedName(t *testing.T) {
	files := &fakeFiles{data: map[string]string{"photo-9": "jpegbytes"}}
	blobs := &fakeBlobs{}
	e := newTestEngine(&fakeCatalog{}, blobs, files, nil)

	_, err := e.StartFlow(context.Background(), 9000, FlowAdminAdd, true)
	require.NoError(t, err)
	walk(t, e, 9000, "9 класс", "Физика", "Конспекты", "Оптика")

	res, err := e.HandleInput(context.Background(), 9000, Attached(Attachment{Ref: "photo-9", Photo: true}))
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeMaterialAdded, res.Outcome.Kind)
	assert.Regexp(t, `^photo_.+\.jpg$`, res.Outcome.Material.DisplayName)
}

func TestAdminAddStorageFailure(t *testing.T) {
	files := &fakeFiles{data: map[string]string{"file-1": "x"}}
	blobs := &fakeBlobs{saveErr: errors.New("disk full")}
	cat := &fakeCatalog{}
	e := newTestEngine(cat, blobs, files, nil)

	_, err := e.StartFlow(context.Background(), 9000, FlowAdminAdd, true)
	require.NoError(t, err)
	walk(t, e, 9000, "9 класс", "Физика", "Конспекты", "Оптика")

	res, err := e.HandleInput(context.Background(), 9000, Attached(Attachment{Ref: "file-1", Name: "a.pdf"}))
	require.NoError(t, err)
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeStorageError, res.Outcome.Kind)
	assert.Error(t, res.Outcome.Err)
	assert.Empty(t, cat.materials, "no catalog row without a stored blob")
}

func TestAdminAddTextInAwaitFileReAsks(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 9000, FlowAdminAdd, true)
	require.NoError(t, err)
	walk(t, e, 9000, "9 класс", "Физика", "Конспекты", "Оптика")

	res := walk(t, e, 9000, "вот файл")
	require.NotNil(t, res.Prompt)
	assert.Nil(t, res.Outcome)
	s, _ := e.Session(9000)
	assert.Equal(t, StateAwaitFile, s.State())
}

func TestAdminDeleteConfirm(t *testing.T) {
	cat := &fakeCatalog{materials: []catalog.Material{testMaterial("Законы Ньютона")}}
	blobs := &fakeBlobs{}
	e := newTestEngine(cat, blobs, nil, nil)

	_, err := e.StartFlow(context.Background(), 9000, FlowAdminDelete, true)
	require.NoError(t, err)
	walk(t, e, 9000, "9 класс", "Физика", "Конспекты", "Законы Ньютона")

	s, _ := e.Session(9000)
	assert.Equal(t, StateConfirmDelete, s.State())

	res := walk(t, e, 9000, "Да, удалить")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeMaterialDeleted, res.Outcome.Kind)
	assert.True(t, res.Outcome.BlobRemoved)
	assert.Empty(t, cat.materials)
	assert.Equal(t, []string{"9/Физика/Конспекты/notes.pdf"}, blobs.removed)
}

func TestAdminDeleteDecline(t *testing.T) {
	cat := &fakeCatalog{materials: []catalog.Material{testMaterial("Законы Ньютона")}}
	e := newTestEngine(cat, nil, nil, nil)

	_, err := e.StartFlow(context.Background(), 9000, FlowAdminDelete, true)
	require.NoError(t, err)
	res := walk(t, e, 9000, "9 класс", "Физика", "Конспекты", "Законы Ньютона", "Нет, отменить")

	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeCancelled, res.Outcome.Kind)
	assert.Len(t, cat.materials, 1, "declining must not delete")
}

func TestAdminDeleteEmptyCategoryEndsFlow(t *testing.T) {
	e := newTestEngine(&fakeCatalog{}, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 9000, FlowAdminDelete, true)
	require.NoError(t, err)

	res := walk(t, e, 9000, "9 класс", "Физика", "Конспекты")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeUnavailable, res.Outcome.Kind)
	require.NotNil(t, res.Prompt)
	assert.Contains(t, res.Prompt.Text, "нет материалов")
	assert.False(t, e.InProgress(9000))
}

func TestBrowseMaterialGoneBetweenListAndPick(t *testing.T) {
	cat := &fakeCatalog{materials: []catalog.Material{testMaterial("Законы Ньютона")}}
	e := newTestEngine(cat, nil, nil, nil)

	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)
	walk(t, e, 1, "9 класс", "Физика", "Конспекты")

	// Deleted while the user was staring at the topic keyboard.
	cat.materials = nil

	res := walk(t, e, 1, "Законы Ньютона")
	require.NotNil(t, res.Outcome)
	assert.Equal(t, OutcomeUnavailable, res.Outcome.Kind)
	assert.False(t, e.InProgress(1))
}

func TestResetDiscardsSession(t *testing.T) {
	e := newTestEngine(nil, nil, nil, nil)
	_, err := e.StartFlow(context.Background(), 1, FlowBrowse, false)
	require.NoError(t, err)
	walk(t, e, 1, "9 класс")

	e.Reset(1)
	assert.False(t, e.InProgress(1))
	_, err = e.HandleInput(context.Background(), 1, Classify("Физика"))
	assert.ErrorIs(t, err, ErrNoActiveFlow)
}
