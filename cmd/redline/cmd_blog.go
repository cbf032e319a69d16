// Package main: blog and version commands.
package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"redline/internal/store"
)

var (
	blogProjectID   string
	versionSource   string
	versionParentID string
	versionReason   string
)

var blogCmd = &cobra.Command{
	Use:   "blog",
	Short: "Manage blogs",
	Long: `Create and inspect blogs.

Subcommands:
  create - Create a new blog
  list   - List all blogs`,
	RunE: runBlogList,
}

var blogCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new blog",
	Args:  cobra.ExactArgs(1),
	RunE:  runBlogCreate,
}

var blogListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all blogs",
	RunE:  runBlogList,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage content versions",
	Long: `Append and inspect immutable content versions.

Subcommands:
  append - Append a new version from a file (or - for stdin)
  list   - List a blog's versions
  show   - Show one version`,
}

var versionAppendCmd = &cobra.Command{
	Use:   "append <blog-id> <file>",
	Short: "Append a new version to a blog",
	Args:  cobra.ExactArgs(2),
	RunE:  runVersionAppend,
}

var versionListCmd = &cobra.Command{
	Use:   "list <blog-id>",
	Short: "List a blog's versions",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionList,
}

var versionShowCmd = &cobra.Command{
	Use:   "show <version-id>",
	Short: "Show one version",
	Args:  cobra.ExactArgs(1),
	RunE:  runVersionShow,
}

func init() {
	blogCreateCmd.Flags().StringVar(&blogProjectID, "project", "", "Optional project id")
	versionAppendCmd.Flags().StringVar(&versionSource, "source", store.SourceHumanPaste, "Version source (human_paste or human_edit)")
	versionAppendCmd.Flags().StringVar(&versionParentID, "parent", "", "Parent version id (empty for the root version)")
	versionAppendCmd.Flags().StringVar(&versionReason, "reason", "", "Change reason")

	blogCmd.AddCommand(blogCreateCmd)
	blogCmd.AddCommand(blogListCmd)
	versionCmd.AddCommand(versionAppendCmd)
	versionCmd.AddCommand(versionListCmd)
	versionCmd.AddCommand(versionShowCmd)
}

func runBlogCreate(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	blog, err := a.store.CreateBlog(args[0], blogProjectID, actor.ID)
	if err != nil {
		return err
	}
	fmt.Printf("Created blog %s (%s)\n", blog.ID, blog.Name)
	return nil
}

func runBlogList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	blogs, err := a.store.ListBlogs()
	if err != nil {
		return err
	}
	if len(blogs) == 0 {
		fmt.Println("No blogs found.")
		return nil
	}
	fmt.Println("Blogs")
	fmt.Println(strings.Repeat("─", 60))
	for _, b := range blogs {
		fmt.Printf("  %s  %s\n", b.ID, b.Name)
	}
	fmt.Println(strings.Repeat("─", 60))
	fmt.Printf("Total: %d\n", len(blogs))
	return nil
}

func runVersionAppend(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	actor, err := a.resolveActor()
	if err != nil {
		return err
	}
	content, err := readContent(args[1])
	if err != nil {
		return err
	}
	v, err := a.store.AppendVersion(store.AppendVersionParams{
		BlogID:          args[0],
		ParentVersionID: versionParentID,
		Content:         content,
		Source:          versionSource,
		ChangeReason:    versionReason,
		CreatedBy:       actor.ID,
	})
	if err != nil {
		return err
	}
	fmt.Printf("Appended version %d (%s) to blog %s\n", v.VersionNumber, v.ID, v.BlogID)
	fmt.Printf("  hash: %s\n", v.ContentHash)
	return nil
}

func runVersionList(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	versions, err := a.store.ListVersions(args[0])
	if err != nil {
		return err
	}
	if len(versions) == 0 {
		fmt.Println("No versions found.")
		return nil
	}
	fmt.Printf("Versions of blog %s\n", args[0])
	fmt.Println(strings.Repeat("─", 72))
	for _, v := range versions {
		state := ""
		if rs, err := a.store.GetReviewState(v.ID); err == nil {
			state = rs.State
		}
		fmt.Printf("  v%-3d %s  %-11s %-9s %s\n",
			v.VersionNumber, v.ID, v.Source, state, v.CreatedAt.Format("2006-01-02 15:04"))
	}
	fmt.Println(strings.Repeat("─", 72))
	return nil
}

func runVersionShow(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.close()

	v, err := a.store.GetVersion(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Version %s (v%d of blog %s)\n", v.ID, v.VersionNumber, v.BlogID)
	fmt.Printf("  source:  %s\n", v.Source)
	if v.ParentVersionID != "" {
		fmt.Printf("  parent:  %s\n", v.ParentVersionID)
	}
	if v.SourceRewriteCycleID != "" {
		fmt.Printf("  cycle:   %s\n", v.SourceRewriteCycleID)
	}
	if v.ChangeReason != "" {
		fmt.Printf("  reason:  %s\n", v.ChangeReason)
	}
	fmt.Printf("  hash:    %s\n", v.ContentHash)
	fmt.Printf("  created: %s by %s\n", v.CreatedAt.Format("2006-01-02 15:04:05"), v.CreatedBy)
	fmt.Println(strings.Repeat("─", 60))
	fmt.Println(v.Content)
	return nil
}
