package importer

// Stats counts what a batch (or a whole run) did.
type Stats struct {
	Posts          int `json:"posts"`
	NewPosts       int `json:"new_posts"`
	RevisitedPosts int `json:"revisited_posts"`
	ArchivedPosts  int `json:"archived_posts"`
	NewContent     int `json:"new_content"`
	DupContent     int `json:"dup_content"`
	NewResources   int `json:"new_resources"`
	Edges          int `json:"edges"`
	Skipped        int `json:"skipped"`
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Posts += o.Posts
	s.NewPosts += o.NewPosts
	s.RevisitedPosts += o.RevisitedPosts
	s.ArchivedPosts += o.ArchivedPosts
	s.NewContent += o.NewContent
	s.DupContent += o.DupContent
	s.NewResources += o.NewResources
	s.Edges += o.Edges
	s.Skipped += o.Skipped
}
