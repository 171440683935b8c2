// Package counter derives a raised-finger count from hand landmarks.
package counter

import "github.com/ufirm/fingercounter/internal/detector"

// MaxPerHand is the largest count a single hand can produce.
const MaxPerHand = 5

// fingers pairs each non-thumb fingertip with its PIP joint.
var fingers = [4][2]int{
	{detector.IndexTip, detector.IndexPIP},
	{detector.MiddleTip, detector.MiddlePIP},
	{detector.RingTip, detector.RingPIP},
	{detector.PinkyTip, detector.PinkyPIP},
}

// ThumbUp reports whether the thumb is extended. In the mirrored view a right
// thumb points towards lower x and a left thumb towards higher x.
func ThumbUp(hand detector.HandLandmarks) bool {
	tip := hand.Points[detector.ThumbTip].X
	ip := hand.Points[detector.ThumbIP].X
	if hand.Handedness == detector.HandRight {
		return tip < ip
	}
	return tip > ip
}

// FingerUp reports whether the finger ending at tip is raised: its tip is
// above the joint in image space, where lower y is higher on screen.
func FingerUp(hand detector.HandLandmarks, tip, joint int) bool {
	return hand.Points[tip].Y < hand.Points[joint].Y
}

// Count returns the number of raised fingers on one hand, 0 to 5.
func Count(hand detector.HandLandmarks) int {
	n := 0
	if ThumbUp(hand) {
		n++
	}
	for _, f := range fingers {
		if FingerUp(hand, f[0], f[1]) {
			n++
		}
	}
	return n
}

// Total sums Count over every hand.
func Total(hands []detector.HandLandmarks) int {
	total := 0
	for _, h := range hands {
		total += Count(h)
	}
	return total
}
