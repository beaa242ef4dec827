package google

import (
	"fmt"

	"github.com/dmitrijs2005/kinsync/internal/common"
)

func unknownSource(source string) error {
	return fmt.Errorf("%w: google has no contact source %q", common.ErrProvider, source)
}
