package internal

import (
	"strconv"
	"time"

	"github.com/qiniu/x/log"
	"github.com/spf13/cobra"

	"github.com/osmocom/osmo-dev/internal/gen"
	"github.com/osmocom/osmo-dev/internal/srccopy"
)

func init() {
	commands = append(commands, newSyncCmd)
}

func newSyncCmd() *cobra.Command {
	var dest string
	cmd := &cobra.Command{
		Use:   "sync-src [--dest dir] <src-dir> <project> [token]",
		Short: "Update the copy of a project's sources",
		Long: `Sync-src mirrors the working tree of <src-dir>/<project>, as git sees it, into
<dest>/<project>. Only changed files are copied, files deleted from the working tree
are removed from the copy. A repeated call with the same token does nothing, the
generated Makefile passes the time make was started.`,
		Args: cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			srcDir, project := args[0], args[1]
			token := strconv.FormatInt(time.Now().UnixNano(), 10)
			if len(args) == 3 {
				token = args[2]
			}
			res, err := srccopy.New(srcDir, dest).Sync(cmd.Context(), project, token)
			if err != nil {
				return err
			}
			if res.Skipped {
				return nil
			}
			log.Infof("sync %s: %d copied, %d removed, %d unchanged",
				project, len(res.Copied), len(res.Removed), res.Unchanged)
			return nil
		},
	}
	cmd.Flags().StringVar(&dest, "dest", gen.SrcCopyDir, "directory holding the copies")
	return cmd
}
