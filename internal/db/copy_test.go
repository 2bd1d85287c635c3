package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "t_distribution", []string{"dof", "two_sigma"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"t_distribution"}, []string{"dof", "two_sigma"}).WillReturnResult(3)

	rows := [][]any{{1, "13.968"}, {2, "4.527"}, {3, "3.307"}}
	n, err := CopyFrom(context.Background(), mock, "t_distribution", []string{"dof", "two_sigma"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"t_distribution"}, []string{"dof", "two_sigma"}).WillReturnError(fmt.Errorf("copy failed"))

	rows := [][]any{{1, "13.968"}}
	_, err = CopyFrom(context.Background(), mock, "t_distribution", []string{"dof", "two_sigma"}, rows)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO t_distribution")
	assert.NoError(t, mock.ExpectationsWereMet())
}
