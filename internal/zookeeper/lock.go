package zookeeper

import (
	"sort"
	"strings"

	"github.com/go-zookeeper/zk"
	"github.com/pkg/errors"
)

const (
	lockRoot = "/distributed_locks" // 所有分布式锁的根节点
)

// ErrLockHeld 表示 TryLock 时锁已被其他会话持有
var ErrLockHeld = errors.New("zookeeper: lock held by another session")

// DistributedLock 基于临时顺序节点的互斥锁
type DistributedLock struct {
	conn     *Conn
	path     string // 例如 /distributed_locks/reservation-sweep
	lockNode string // 成功获取锁后，自己创建的节点路径
}

// NewDistributedLock 创建锁实例，并确保锁路径存在
func NewDistributedLock(conn *Conn, resourceID string) (*DistributedLock, error) {
	lockPath := lockRoot + "/" + resourceID
	for _, p := range []string{lockRoot, lockPath} {
		_, err := conn.Create(p, []byte(""), 0, zk.WorldACL(zk.PermAll))
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return nil, errors.Wrapf(err, "create lock node %s", p)
		}
	}
	return &DistributedLock{conn: conn, path: lockPath}, nil
}

// TryLock 创建顺序节点并检查自己是否最小；不是则删除节点并返回 ErrLockHeld
func (l *DistributedLock) TryLock() error {
	if l.lockNode != "" {
		return nil
	}
	nodePath, err := l.conn.CreateProtectedEphemeralSequential(l.path+"/lock-", []byte(""), zk.WorldACL(zk.PermAll))
	if err != nil {
		return errors.Wrap(err, "create sequential node")
	}
	first, err := l.isFirst(nodePath)
	if err != nil || !first {
		_ = l.conn.Delete(nodePath, -1)
		if err != nil {
			return err
		}
		return ErrLockHeld
	}
	l.lockNode = nodePath
	return nil
}

// Unlock 释放锁
func (l *DistributedLock) Unlock() error {
	if l.lockNode == "" {
		return errors.New("no lock to unlock")
	}
	err := l.conn.Delete(l.lockNode, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return errors.Wrap(err, "delete lock node")
	}
	l.lockNode = ""
	return nil
}

func (l *DistributedLock) isFirst(nodePath string) (bool, error) {
	children, _, err := l.conn.Children(l.path)
	if err != nil {
		return false, errors.Wrap(err, "get children nodes")
	}
	sortBySequence(children)
	idx := indexOf(children, strings.TrimPrefix(nodePath, l.path+"/"))
	if idx < 0 {
		return false, errors.New("own lock node disappeared")
	}
	return idx == 0, nil
}

// 受保护节点带有随机 GUID 前缀，需要按序号后缀排序
func sortBySequence(children []string) {
	sort.Slice(children, func(i, j int) bool {
		return sequenceOf(children[i]) < sequenceOf(children[j])
	})
}

func sequenceOf(node string) string {
	if i := strings.LastIndex(node, "lock-"); i >= 0 {
		return node[i+len("lock-"):]
	}
	return node
}

func indexOf(children []string, name string) int {
	for i, c := range children {
		if c == name {
			return i
		}
	}
	return -1
}
