package importer

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trailkeep/internal/ir"
	"github.com/roach88/trailkeep/internal/source"
	"github.com/roach88/trailkeep/internal/testutil"
)

func TestRevisit_UnchangedPostArchivesNothing(t *testing.T) {
	env := newTestEnv(t)
	b := testutil.Batch("alice/1.json", "alice", testutil.Post("100", "alice").Title("Hello").Tags("x").Build())

	env.importRun(t, 0, b)
	run2, stats := env.importRun(t, 1, b)

	assert.Equal(t, 1, stats.RevisitedPosts)
	assert.Equal(t, 0, stats.ArchivedPosts)
	assert.Equal(t, 0, stats.NewPosts)
	assert.False(t, env.post(t, "100").History.Has(run2.ID))
	assert.Equal(t, 1, env.count(t, "posts"))
}

func TestRevisit_OnlyPostsBelowPreviousWatermark(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("alice/1.json", "alice", testutil.Post("100", "alice").Build()))

	rc := env.openRun(t, 1)
	stats := env.importBatch(t, rc, testutil.Batch("alice/2.json", "alice", testutil.Post("200", "alice").Build()))
	assert.Equal(t, 1, stats.NewPosts)

	stats = env.importBatch(t, rc, testutil.Batch("alice/3.json", "alice",
		testutil.Post("200", "alice").Title("changed").Build()))
	assert.Equal(t, 0, stats.RevisitedPosts, "created in this run, above the previous watermark")
	assert.Equal(t, "", env.post(t, "200").Title)
}

func TestRevisit_FirstRunNeverRevisits(t *testing.T) {
	env := newTestEnv(t)
	rc := env.openRun(t, 0)
	assert.Nil(t, rc.Previous)

	env.importBatch(t, rc, testutil.Batch("a.json", "alice", testutil.Post("1", "alice").Title("one").Build()))
	stats := env.importBatch(t, rc, testutil.Batch("b.json", "alice", testutil.Post("1", "alice").Title("two").Build()))

	assert.Equal(t, 0, stats.RevisitedPosts)
	assert.Equal(t, "one", env.post(t, "1").Title)
}

func TestRevisit_TrailGrowth(t *testing.T) {
	env := newTestEnv(t)
	c1 := testutil.Layer("bob", "90", "<p>c1</p>")
	c2 := testutil.Layer("alice", "100", "<p>c2</p>")
	run1Post := testutil.Post("100", "alice").RebloggedFrom("bob", "90", "bob", "90").Trail(c1).Build()
	run2Post := testutil.Post("100", "alice").RebloggedFrom("bob", "90", "bob", "90").Trail(c1, c2).Build()

	env.importRun(t, 0, testutil.Batch("alice/1.json", "alice", run1Post))
	p := env.post(t, "100")
	before, err := env.store.PostContents(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)
	c1ID := before[0].ContentID

	run2, stats := env.importRun(t, 1, testutil.Batch("alice/1.json", "alice", run2Post))

	assert.Equal(t, 1, stats.ArchivedPosts)
	p = env.post(t, "100")
	require.True(t, p.History.Has(run2.ID))
	assert.Equal(t, []int64{c1ID}, p.History[run2.ID].Trail)

	after, err := env.store.PostContents(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, c1ID, after[0].ContentID, "unchanged layer keeps its block")
	assert.Equal(t, 0, after[0].Position)
	assert.Equal(t, 1, after[1].Position)
	assert.True(t, after[1].IsLast)
	assert.Equal(t, 2, env.count(t, "contents"))
}

func TestRevisit_MirrorChangeIsNotAChange(t *testing.T) {
	env := newTestEnv(t)
	mirrored := func(host string) source.Batch {
		url := "https://" + host + ".media.tumblr.com/abc/x_500.jpg"
		return testutil.Batch("alice/1.json", "alice",
			testutil.Post("100", "alice").
				Photo(url, 500, 400).
				Trail(testutil.Layer("alice", "100", `<img src="`+url+`">`)).
				Build())
	}

	env.importRun(t, 0, mirrored("64"))
	run2, stats := env.importRun(t, 1, mirrored("65"))

	assert.Equal(t, 0, stats.NewContent)
	assert.Equal(t, 1, stats.DupContent)
	assert.Equal(t, 0, stats.NewResources)
	assert.Equal(t, 0, stats.ArchivedPosts)
	assert.Equal(t, 1, env.count(t, "contents"))
	assert.Equal(t, 1, env.count(t, "resources"))
	assert.False(t, env.post(t, "100").History.Has(run2.ID))
}

func TestRevisit_BackfillsLineage(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("alice/1.json", "alice", testutil.Post("200", "alice").Build()))

	run2, stats := env.importRun(t, 1, testutil.Batch("alice/1.json", "alice",
		testutil.Post("200", "alice").RebloggedFrom("bob", "150", "carol", "100").Build()))

	p := env.post(t, "200")
	bob, carol, alice := env.nameID(t, "bob"), env.nameID(t, "carol"), env.nameID(t, "alice")

	assert.Equal(t, bob, p.FromAccountNameID)
	assert.Equal(t, ir.SourceID("100"), p.RootSourceID)
	assert.Equal(t, ir.SourceID("150"), p.FromSourceID)
	assert.Equal(t, alice, p.RootAccountNameID, "a known root account is never overwritten")
	assert.False(t, p.IsRoot, "root flag is demoted")

	arch := p.History[run2.ID]
	assert.Equal(t, ir.EmptyMarker, arch.FromAccount)
	assert.Equal(t, ir.EmptyMarker, arch.RootSourceID)
	assert.Equal(t, ir.EmptyMarker, arch.FromSourceID)
	assert.Empty(t, arch.RootAccount)

	assert.Equal(t, 1, stats.Edges)
	edges, err := env.store.ListEdges(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, ir.EdgeRename, edges[0].Kind)
	assert.Equal(t, carol, edges[0].SourceNameID)
	assert.Equal(t, alice, edges[0].DestNameID)
	assert.Equal(t, ir.EdgeContext{PostID: p.ID, Type: "root"}, edges[0].Context)
}

func TestRevisit_BackfillIsMonotonic(t *testing.T) {
	env := newTestEnv(t)
	plain := testutil.Batch("alice/1.json", "alice", testutil.Post("200", "alice").Build())
	reblog := testutil.Batch("alice/1.json", "alice",
		testutil.Post("200", "alice").RebloggedFrom("bob", "150", "bob", "150").Build())

	env.importRun(t, 0, plain)
	env.importRun(t, 1, reblog)
	run3, _ := env.importRun(t, 2, plain)

	p := env.post(t, "200")
	assert.Equal(t, env.nameID(t, "bob"), p.FromAccountNameID, "absent values never clear stored ones")
	assert.Equal(t, ir.SourceID("150"), p.FromSourceID)
	assert.False(t, p.IsRoot, "root flag is never promoted")
	assert.False(t, p.History.Has(run3.ID))
}

func TestRevisit_AccountRename(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("alice/1.json", "alice", testutil.Post("100", "alice").Build()))
	env.importRun(t, 1, testutil.Batch("alice2/1.json", "alice2", testutil.Post("100", "alice2").Build()))

	alice, alice2 := env.nameID(t, "alice"), env.nameID(t, "alice2")
	p := env.post(t, "100")
	assert.Equal(t, alice, p.AccountNameID)

	edges, err := env.store.ListEdges(context.Background())
	require.NoError(t, err)
	require.Len(t, edges, 1, "the root mismatch names the same pair")
	assert.Equal(t, alice2, edges[0].SourceNameID)
	assert.Equal(t, alice, edges[0].DestNameID)
	assert.Equal(t, "main", edges[0].Context.Type)
}

func TestRevisit_TitleChange(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Title("Hello").Build()))
	run2, _ := env.importRun(t, 1, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Title("Hello again").Build()))

	p := env.post(t, "100")
	assert.Equal(t, "Hello again", p.Title)
	assert.Equal(t, "Hello", p.History[run2.ID].Title)
}

func TestRevisit_TagChange(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Tags("a", "b").Build()))
	p := env.post(t, "100")
	before, err := env.store.PostTags(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, before, 2)

	run2, _ := env.importRun(t, 1, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Tags("b", "c").Build()))

	p = env.post(t, "100")
	assert.Equal(t, []int64{before[0].TagID, before[1].TagID}, p.History[run2.ID].Tags)

	after, err := env.store.PostTags(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, after, 2)
	assert.Equal(t, "b", after[0].Name)
	assert.Equal(t, "c", after[1].Name)
	assert.Equal(t, before[1].TagID, after[0].TagID)
}

func TestRevisit_BodyChange(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Quote("hi", "me").Build()))
	p := env.post(t, "100")
	before, err := env.store.PostContents(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)

	run2, _ := env.importRun(t, 1, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Quote("bye", "me").Build()))

	p = env.post(t, "100")
	root := p.History[run2.ID].Root
	require.NotNil(t, root)
	assert.Equal(t, before[0].ContentID, *root)

	after, err := env.store.PostContents(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, ir.BodyPosition, after[0].Position)
	assert.NotEqual(t, before[0].ContentID, after[0].ContentID)
	assert.Equal(t, 2, env.count(t, "contents"), "old revision is kept")
}

func TestRevisit_BodyAppears(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Build()))
	run2, _ := env.importRun(t, 1, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Quote("new", "me").Build()))

	p := env.post(t, "100")
	root := p.History[run2.ID].Root
	require.NotNil(t, root)
	assert.Equal(t, ir.NoPriorBody, *root)
	assert.Equal(t, ir.KindText, p.Kind, "kind drift is only logged")
}

func TestRevisit_KindAndDateDriftAreOnlyLogged(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Title("Hi").Build()))

	drifted := testutil.Batch("a.json", "alice",
		testutil.Post("100", "alice").Title("Hi").Timestamp(testutil.DefaultTimestamp+60).Link("https://example.com/a", "").Build())
	run2, stats := env.importRun(t, 1, drifted)
	assert.Equal(t, 1, stats.RevisitedPosts)

	p := env.post(t, "100")
	assert.Equal(t, ir.KindText, p.Kind)
	assert.Nil(t, p.TypeMeta)
	assert.Equal(t, testutil.DefaultTimestamp, p.Date.Unix())
	assert.Empty(t, p.History[run2.ID].Meta)

	run3, stats := env.importRun(t, 2, drifted)
	assert.Equal(t, 1, stats.RevisitedPosts)
	posts, err := env.store.ListPosts(context.Background())
	require.NoError(t, err)
	require.Len(t, posts, 1)
	assert.False(t, posts[0].History.Has(run3.ID))
}

func TestRevisit_KindChangeKeepsStoredMeta(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Link("https://example.com/a", "").Build()))

	photo := testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Photo("https://example.com/p.jpg", 10, 10).Build())
	env.importRun(t, 1, photo)
	run3, _ := env.importRun(t, 2, photo)

	p := env.post(t, "100")
	assert.Equal(t, ir.KindLink, p.Kind)
	assert.Equal(t, ir.LinkMeta{URL: "https://example.com/a"}, p.TypeMeta)
	assert.Empty(t, p.History[run3.ID].Meta, "stored meta is not archived again")
}

func TestRevisit_MetaChange(t *testing.T) {
	env := newTestEnv(t)
	link := func(url string) source.Batch {
		return testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Link(url, "excerpt").Build())
	}

	env.importRun(t, 0, link("http://example.com/a"))
	run2, stats := env.importRun(t, 1, link("https://example.com/a"))
	assert.Equal(t, 0, stats.ArchivedPosts, "http and https compare equal")
	assert.False(t, env.post(t, "100").History.Has(run2.ID))

	run3, _ := env.importRun(t, 2, link("https://example.com/b"))
	p := env.post(t, "100")
	assert.JSONEq(t, `{"url":"http://example.com/a"}`, string(p.History[run3.ID].Meta))
	assert.Equal(t, ir.LinkMeta{URL: "https://example.com/b"}, p.TypeMeta)
}

func TestRevisit_MetaAppearsArchivesEmptyMarker(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Kind(ir.KindLink).Build()))
	run2, _ := env.importRun(t, 1, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Link("https://x.org", "").Build()))

	var marker string
	require.NoError(t, json.Unmarshal(env.post(t, "100").History[run2.ID].Meta, &marker))
	assert.Equal(t, string(ir.EmptyMarker), marker)
}

func TestRevisit_ResourceChange(t *testing.T) {
	env := newTestEnv(t)
	photo := func(url string) source.Batch {
		return testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Photo(url, 500, 400).Build())
	}

	env.importRun(t, 0, photo("https://example.com/one.jpg"))
	p := env.post(t, "100")
	before, err := env.store.PostResources(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, before, 1)

	run2, _ := env.importRun(t, 1, photo("https://example.com/two.jpg"))

	p = env.post(t, "100")
	assert.Equal(t, []int64{before[0].ResourceID}, p.History[run2.ID].Resources)
	after, err := env.store.PostResources(context.Background(), p.ID)
	require.NoError(t, err)
	require.Len(t, after, 1)
	assert.Equal(t, "https://example.com/two.jpg", after[0].URL)
}

func TestRevisit_SubmissionFlagIsSet(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Build()))
	run2, _ := env.importRun(t, 1, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Submission().Build()))

	p := env.post(t, "100")
	assert.True(t, p.Meta.IsSubmission)
	assert.False(t, p.History.Has(run2.ID), "flag changes are not archived")
}

func TestRevisit_HistoryAccumulatesAcrossRuns(t *testing.T) {
	env := newTestEnv(t)
	titled := func(title string) source.Batch {
		return testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Title(title).Build())
	}

	env.importRun(t, 0, titled("one"))
	run2, _ := env.importRun(t, 1, titled("two"))
	run3, _ := env.importRun(t, 2, titled("three"))

	p := env.post(t, "100")
	assert.Equal(t, []int64{run2.ID, run3.ID}, p.History.Runs())
	assert.Equal(t, "one", p.History[run2.ID].Title)
	assert.Equal(t, "two", p.History[run3.ID].Title)
}

func TestRevisit_OncePerRun(t *testing.T) {
	env := newTestEnv(t)
	env.importRun(t, 0, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Title("one").Build()))

	rc := env.openRun(t, 1)
	env.importBatch(t, rc, testutil.Batch("a.json", "alice", testutil.Post("100", "alice").Title("two").Build()))
	stats := env.importBatch(t, rc, testutil.Batch("b.json", "alice", testutil.Post("100", "alice").Title("three").Build()))

	assert.Equal(t, 0, stats.RevisitedPosts, "history already holds this run")
	assert.Equal(t, "two", env.post(t, "100").Title)
}

func TestOutcome_String(t *testing.T) {
	assert.Equal(t, "created", OutcomeCreated.String())
	assert.Equal(t, "unchanged", OutcomeUnchanged.String())
	assert.Equal(t, "revisited", OutcomeRevisited.String())
	assert.Equal(t, "outcome(9)", Outcome(9).String())
}
